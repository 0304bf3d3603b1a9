package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStoreOperationsTotal(t *testing.T) {
	StoreOperationsTotal.WithLabelValues("get", "success").Inc()
	val := testutil.ToFloat64(StoreOperationsTotal.WithLabelValues("get", "success"))
	if val < 1 {
		t.Errorf("expected StoreOperationsTotal to be at least 1, got %v", val)
	}
}

func TestStoreOperationDuration(t *testing.T) {
	StoreOperationDuration.WithLabelValues("get").Observe(0.1)
}

func TestReconnectGraceOutcomes(t *testing.T) {
	ReconnectGraceOutcomes.WithLabelValues("reconnected").Inc()
	val := testutil.ToFloat64(ReconnectGraceOutcomes.WithLabelValues("reconnected"))
	if val < 1 {
		t.Errorf("expected ReconnectGraceOutcomes to be at least 1, got %v", val)
	}
}

func TestPromptRollDuration(t *testing.T) {
	PromptRollDuration.Observe(0.5)
}

func TestConnectionCounters(t *testing.T) {
	before := testutil.ToFloat64(ActiveWebSocketConnections)
	IncConnection()
	if after := testutil.ToFloat64(ActiveWebSocketConnections); after != before+1 {
		t.Errorf("expected ActiveWebSocketConnections to increment, before=%v after=%v", before, after)
	}
	DecConnection()
	if after := testutil.ToFloat64(ActiveWebSocketConnections); after != before {
		t.Errorf("expected ActiveWebSocketConnections to decrement back, before=%v after=%v", before, after)
	}
}

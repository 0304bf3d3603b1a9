package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/types"
)

type dicePromptData struct {
	PromptedPlayer string `json:"prompted_player"`
	RollType       string `json:"roll_type"`
	PromptedBy     string `json:"prompted_by"`
	PromptID       string `json:"prompt_id"`
}

// handleDicePrompt logs a DM-issued prompt bound to prompt_id, so a later
// roll or clear can remove exactly this entry.
func handleDicePrompt(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body dicePromptData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal dice prompt: %w", err)
	}
	if body.PromptedBy == "" {
		body.PromptedBy = player
	}

	logMsg := fmt.Sprintf("%s was asked to roll %s", body.PromptedPlayer, body.RollType)
	if _, err := d.Logs.AddEntry(ctx, roomID, logMsg, types.LogDungeonMaster, body.PromptedBy, body.PromptID, d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log dice prompt: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "dice_prompt",
			"data": map[string]any{
				"prompted_player": body.PromptedPlayer,
				"roll_type":       body.RollType,
				"prompted_by":     body.PromptedBy,
				"prompt_id":       body.PromptID,
				"log_message":     logMsg,
			},
		},
	}, nil
}

type initiativePromptAllData struct {
	Players    []string `json:"players"`
	PromptedBy string   `json:"prompted_by"`
}

// handleInitiativePromptAll mints a single prompt_id covering every named
// player and logs one collective entry instead of one per player.
func handleInitiativePromptAll(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body initiativePromptAllData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal initiative prompt: %w", err)
	}
	if body.PromptedBy == "" {
		body.PromptedBy = player
	}

	promptID := fmt.Sprintf("initiative_all_%d", time.Now().UnixMilli())
	logMsg := fmt.Sprintf("%s was asked to roll initiative for all players", strings.Join(body.Players, ", "))
	if _, err := d.Logs.AddEntry(ctx, roomID, logMsg, types.LogDungeonMaster, body.PromptedBy, promptID, d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log initiative prompt: %w", err)
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "initiative_prompt_all",
			"data": map[string]any{
				"players_to_prompt":    body.Players,
				"roll_type":            "Initiative",
				"prompted_by":          body.PromptedBy,
				"prompt_id":            promptID,
				"initiative_prompt_id": promptID,
				"log_message":          logMsg,
			},
		},
	}, nil
}

type dicePromptClearData struct {
	ClearedBy          string `json:"cleared_by"`
	ClearAll           bool   `json:"clear_all"`
	PromptID           string `json:"prompt_id"`
	InitiativePromptID string `json:"initiative_prompt_id"`
}

// handleDicePromptClear removes the adventure-log entry for a cancelled
// prompt, preferring the specific prompt_id and falling back to the
// initiative batch id when clearing everything.
func handleDicePromptClear(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body dicePromptClearData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal dice prompt clear: %w", err)
	}
	if body.ClearedBy == "" {
		body.ClearedBy = player
	}

	var logRemoval any
	removeID := body.PromptID
	if removeID == "" && body.ClearAll {
		removeID = body.InitiativePromptID
	}
	if removeID != "" {
		n, err := d.Logs.RemoveByPromptID(ctx, roomID, removeID)
		if err != nil {
			return nil, fmt.Errorf("remove prompt log: %w", err)
		}
		if n > 0 {
			logRemoval = map[string]any{
				"event_type": "adventure_log_removed",
				"data": map[string]any{
					"prompt_id":  removeID,
					"removed_by": body.ClearedBy,
				},
			}
		}
	}

	return &Result{
		Broadcast: map[string]any{
			"event_type": "dice_prompt_clear",
			"data": map[string]any{
				"cleared_by": body.ClearedBy,
				"clear_all":  body.ClearAll,
				"prompt_id":  body.PromptID,
			},
		},
		LogRemoval: logRemoval,
	}, nil
}

type diceRollData struct {
	Player       string  `json:"player"`
	DiceNotation string  `json:"diceNotation"`
	Results      []int   `json:"results"`
	Total        int     `json:"total"`
	Modifier     int     `json:"modifier"`
	Advantage    string  `json:"advantage"`
	Context      string  `json:"context"`
	PromptID     string  `json:"prompt_id"`
}

// handleDiceRoll formats the roll message server-side, logs it, and — if
// the roll completes a prompt — removes that prompt's log entry and clears
// it client-side, both delayed so the primary roll animates first.
func handleDiceRoll(ctx context.Context, d *Deps, roomID, player string, data json.RawMessage) (*Result, error) {
	var body diceRollData
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("unmarshal dice roll: %w", err)
	}

	formatted := formatDiceRollMessage(body)
	if _, err := d.Logs.AddEntry(ctx, roomID, formatted, types.LogPlayerRoll, body.Player, "", d.MaxLogs); err != nil {
		return nil, fmt.Errorf("log dice roll: %w", err)
	}

	merged := map[string]any{}
	if err := json.Unmarshal(data, &merged); err == nil {
		merged["player"] = body.Player
		merged["message"] = formatted
		merged["prompt_id"] = body.PromptID
	}

	result := &Result{
		Broadcast: map[string]any{
			"event_type": "dice_roll",
			"data":       merged,
		},
		DelayFollowups: true,
	}

	switch {
	case body.PromptID != "":
		n, err := d.Logs.RemoveByPromptID(ctx, roomID, body.PromptID)
		if err != nil {
			return nil, fmt.Errorf("remove completed prompt log: %w", err)
		}
		if n > 0 {
			result.LogRemoval = map[string]any{
				"event_type": "adventure_log_removed",
				"data": map[string]any{
					"prompt_id":  body.PromptID,
					"removed_by": "system",
				},
			}
		}
		result.ClearPrompt = map[string]any{
			"event_type": "dice_prompt_clear",
			"data": map[string]any{
				"cleared_by":   "system",
				"auto_cleared": true,
				"prompt_id":    body.PromptID,
			},
		}
	case body.Player != "":
		result.ClearPrompt = map[string]any{
			"event_type": "dice_prompt_clear",
			"data": map[string]any{
				"cleared_by":     "system",
				"auto_cleared":   true,
				"cleared_player": body.Player,
			},
		}
	}

	return result, nil
}

// formatDiceRollMessage builds "[context]: NdM: [r1, r2] ±mod = total
// (Advantage|Disadvantage)", omitting any bracketed part whose source field
// is absent.
func formatDiceRollMessage(roll diceRollData) string {
	var b strings.Builder
	if roll.Context != "" {
		b.WriteString("[" + roll.Context + "]: ")
	}
	b.WriteString(roll.DiceNotation)
	if len(roll.Results) > 0 {
		parts := make([]string, len(roll.Results))
		for i, r := range roll.Results {
			parts[i] = strconv.Itoa(r)
		}
		b.WriteString(": [" + strings.Join(parts, ", ") + "]")
	}
	if roll.Modifier != 0 {
		sign := ""
		if roll.Modifier > 0 {
			sign = "+"
		}
		b.WriteString(fmt.Sprintf(" %s%d", sign, roll.Modifier))
	}
	b.WriteString(fmt.Sprintf(" = %d", roll.Total))
	switch roll.Advantage {
	case "advantage":
		b.WriteString(" (Advantage)")
	case "disadvantage":
		b.WriteString(" (Disadvantage)")
	}
	return b.String()
}

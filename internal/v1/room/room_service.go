// Package room implements the authoritative per-room state machines:
// RoomService (seats, colors, roles, audio), MapService (active map) and
// LogService (adventure log), grounded on the original GameService,
// MapService and AdventureLogService.
package room

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/store"
	"github.com/tabletop-tavern/api-game/internal/v1/types"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"k8s.io/utils/set"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// roomCacheTTL bounds how long a cached room document survives between
// writes; short enough that a crash losing the cache costs nothing more
// than one extra document-store read per room.
const roomCacheTTL = 5 * time.Second

// RoomService is thin CRUD on the room document plus role queries. GetRoom
// is the hottest read in the service - every dispatcher call and most HTTP
// handlers fetch the room before mutating it - so reads are fronted by a
// read-through Ristretto cache that every write refreshes with the written
// document and that DeleteRoom clears.
type RoomService struct {
	store *store.Client
	cache *ristretto.Cache
}

// NewRoomService constructs a RoomService over a document store client.
func NewRoomService(s *store.Client) *RoomService {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// A cache that can't be built degrades to always-miss, never to a
		// service that can't start.
		cache = nil
	}
	return &RoomService{store: s, cache: cache}
}

func (s *RoomService) cacheGet(id string) (*types.Room, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	r, ok := v.(*types.Room)
	return r, ok
}

func (s *RoomService) cachePut(id string, r *types.Room) {
	if s.cache == nil {
		return
	}
	s.cache.SetWithTTL(id, r, 1, roomCacheTTL)
}

func (s *RoomService) cacheInvalidate(id string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(id)
}

// CreateSettings is the caller-supplied shape for CreateRoom.
type CreateSettings struct {
	MaxPlayers    int
	RoomHost      string
	DungeonMaster string
	SeatColors    map[string]string
}

// CreateRoom creates a room document. If id is empty, one is minted;
// otherwise the caller-supplied (catalog-assigned) id is used as-is.
func (s *RoomService) CreateRoom(ctx context.Context, id string, settings CreateSettings) (*types.Room, error) {
	if settings.MaxPlayers < 1 || settings.MaxPlayers > 8 {
		return nil, fmt.Errorf("%w: max_players must be in [1,8]", ErrValidation)
	}
	if id == "" {
		id = uuid.NewString()
	}

	colors := settings.SeatColors
	if colors == nil {
		colors = make(map[string]string, settings.MaxPlayers)
		for i := 0; i < settings.MaxPlayers; i++ {
			colors[fmt.Sprintf("%d", i)] = types.DefaultSeatColors[i%len(types.DefaultSeatColors)]
		}
	}

	layout := make([]string, settings.MaxPlayers)
	for i := range layout {
		layout[i] = types.EmptySeat
	}

	host := normalizeName(settings.RoomHost)
	dm := normalizeName(settings.DungeonMaster)

	room := &types.Room{
		ID:            id,
		MaxPlayers:    settings.MaxPlayers,
		SeatLayout:    layout,
		SeatColors:    colors,
		RoomHost:      host,
		DungeonMaster: dm,
		Moderators:    []string{},
		AudioState:    map[string]types.AudioChannel{},
		ActiveDisplay: types.ActiveDisplayNone,
		CreatedAt:     time.Now().Unix(),
	}

	if err := s.store.SaveRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	s.cachePut(id, room)
	return room, nil
}

// GetRoom returns the full room document, served from cache when warm. The
// returned value must be treated as read-only: it may be shared with other
// concurrent callers via the cache. Mutating code paths go through
// fetchForMutate instead, which always reads its own fresh copy from the
// store.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*types.Room, error) {
	if r, ok := s.cacheGet(id); ok {
		return r, nil
	}
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(id, r)
	return r, nil
}

// fetchForMutate always reads a fresh, unshared copy of the room document
// from the store, safe for a caller to mutate in place before saving.
func (s *RoomService) fetchForMutate(ctx context.Context, id string) (*types.Room, error) {
	r, err := s.store.GetRoom(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

// UpdateSeatLayout validates and persists a new seat layout.
func (s *RoomService) UpdateSeatLayout(ctx context.Context, id string, layout []string) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(layout) > r.MaxPlayers {
		return nil, fmt.Errorf("%w: seat layout length %d exceeds max_players %d", ErrValidation, len(layout), r.MaxPlayers)
	}

	normalized := make([]string, len(layout))
	for i, name := range layout {
		normalized[i] = normalizeName(name)
	}
	r.SeatLayout = normalized

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("update seat layout: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// DisplacedPlayer names a player whose seat disappeared on a shrink.
type DisplacedPlayer struct {
	PlayerName string
	SeatID     int
}

// UpdateSeatCount resizes seat_layout, keeping survivors in place and
// filling trailing slots with the empty sentinel. The caller pre-computes
// which players were displaced; this method only resizes the storage.
func (s *RoomService) UpdateSeatCount(ctx context.Context, id string, newMax int) (*types.Room, error) {
	if newMax < 1 || newMax > 8 {
		return nil, fmt.Errorf("%w: max_players must be in [1,8]", ErrValidation)
	}
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}

	layout := make([]string, newMax)
	for i := range layout {
		if i < len(r.SeatLayout) {
			layout[i] = r.SeatLayout[i]
		} else {
			layout[i] = types.EmptySeat
		}
	}
	r.MaxPlayers = newMax
	r.SeatLayout = layout

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("update seat count: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// UpdateSeatColors validates every value is a 7-char hex color, then persists.
func (s *RoomService) UpdateSeatColors(ctx context.Context, id string, colors map[string]string) (*types.Room, error) {
	for idx, color := range colors {
		if !colorPattern.MatchString(color) {
			return nil, fmt.Errorf("%w: seat %s color %q is not a valid hex color", ErrValidation, idx, color)
		}
	}
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	r.SeatColors = colors

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("update seat colors: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// IsHost reports whether player is the case-insensitive room host.
func (s *RoomService) IsHost(ctx context.Context, id, player string) (bool, error) {
	r, err := s.GetRoom(ctx, id)
	if err != nil {
		return false, err
	}
	return r.RoomHost != "" && r.RoomHost == normalizeName(player), nil
}

// IsModerator reports whether player is a moderator; the host is always one.
func (s *RoomService) IsModerator(ctx context.Context, id, player string) (bool, error) {
	r, err := s.GetRoom(ctx, id)
	if err != nil {
		return false, err
	}
	name := normalizeName(player)
	if r.RoomHost != "" && r.RoomHost == name {
		return true, nil
	}
	return set.New(r.Moderators...).Has(name), nil
}

// IsDM reports whether player is the room's dungeon master.
func (s *RoomService) IsDM(ctx context.Context, id, player string) (bool, error) {
	r, err := s.GetRoom(ctx, id)
	if err != nil {
		return false, err
	}
	return r.DungeonMaster != "" && r.DungeonMaster == normalizeName(player), nil
}

// AddModerator adds player to the moderator set.
func (s *RoomService) AddModerator(ctx context.Context, id, player string) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	mods := set.New(r.Moderators...)
	mods.Insert(normalizeName(player))
	r.Moderators = sortedList(mods)

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("add moderator: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// RemoveModerator removes player from the moderator set.
func (s *RoomService) RemoveModerator(ctx context.Context, id, player string) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	mods := set.New(r.Moderators...)
	mods.Delete(normalizeName(player))
	r.Moderators = sortedList(mods)

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("remove moderator: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// SetDM assigns the single dungeon-master slot.
func (s *RoomService) SetDM(ctx context.Context, id, player string) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	r.DungeonMaster = normalizeName(player)

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("set dm: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// UnsetDM clears the dungeon-master slot.
func (s *RoomService) UnsetDM(ctx context.Context, id string) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	r.DungeonMaster = ""

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("unset dm: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// UpdateAudioState replaces the named channel atomically. Callers needing
// read-modify-write (pause/resume timer math) must fetch audio_state first.
func (s *RoomService) UpdateAudioState(ctx context.Context, id, channelID string, channel types.AudioChannel) (*types.Room, error) {
	r, err := s.fetchForMutate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.AudioState == nil {
		r.AudioState = map[string]types.AudioChannel{}
	}
	r.AudioState[channelID] = channel

	if err := s.store.SaveRoom(ctx, r); err != nil {
		return nil, fmt.Errorf("update audio state: %w", err)
	}
	s.cachePut(id, r)
	return r, nil
}

// DeleteRoom removes the room document and, unless keepLogs is set, its logs
// and maps as well.
func (s *RoomService) DeleteRoom(ctx context.Context, id string, keepLogs bool) error {
	s.cacheInvalidate(id)
	return s.store.DeleteRoom(ctx, id, keepLogs)
}

func sortedList(s set.Set[string]) []string {
	list := s.UnsortedList()
	sort.Strings(list)
	return list
}

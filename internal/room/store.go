// Package room owns the in-memory collection of rooms and the join/leave/
// disconnect rules around it.
package room

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
	"github.com/Lokesh2Arvind/Quizchain/internal/telemetry"
)

const (
	// codeAlphabet avoids ambiguous characters (0/O, 1/I).
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	// maxCodeRetries bounds collision retries; hitting it fails the create
	// call, not the process.
	maxCodeRetries = 10

	minPlayers  = 2
	maxPlayers  = 10
	maxEntryFee = 1000
)

var feeCap = decimal.NewFromInt(maxEntryFee)

type Config struct {
	EventBus *event.Bus

	// ValidTopic is the question source's topic check, injected so the
	// store doesn't depend on the provider.
	ValidTopic func(domain.Topic) bool
}

type memberRef struct {
	roomID  string
	address string
}

// Store is the in-memory room collection. The top-level maps are guarded by
// an RWMutex; each room carries its own lock, so operations on one room
// never serialize against unrelated rooms.
type Store struct {
	c  Config
	eb *event.Bus

	mu    sync.RWMutex
	rooms map[string]*domain.Room
	codes map[string]string
	conns map[string]memberRef
}

func NewStore(c Config) *Store {
	if c.ValidTopic == nil {
		c.ValidTopic = func(domain.Topic) bool { return true }
	}

	return &Store{
		c:     c,
		eb:    c.EventBus,
		rooms: make(map[string]*domain.Room),
		codes: make(map[string]string),
		conns: make(map[string]memberRef),
	}
}

type CreateRequest struct {
	Host   domain.Player
	Config domain.RoomConfig
}

// Create validates the config, allocates an id and a unique entry code, and
// registers the room in waiting state.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*domain.Room, error) {
	if err := validateConfig(req.Config, s.c.ValidTopic); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate room ID: %w", err)
	}

	s.mu.Lock()
	code, err := s.generateCodeLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	r := &domain.Room{
		ID:        id.String(),
		Code:      code,
		Host:      req.Host,
		Config:    req.Config,
		Status:    domain.StatusWaiting,
		CreatedAt: time.Now(),
	}

	view := r.View()

	s.rooms[r.ID] = r
	s.codes[code] = r.ID
	if req.Host.ConnID != "" {
		s.conns[req.Host.ConnID] = memberRef{roomID: r.ID, address: req.Host.Address}
	}
	telemetry.ActiveRooms.Set(float64(len(s.rooms)))
	s.mu.Unlock()

	s.eb.Publish(ctx, domain.EventRoomCreated{View: view})

	return r, nil
}

func validateConfig(c domain.RoomConfig, validTopic func(domain.Topic) bool) error {
	if c.EntryFee.IsNegative() || c.EntryFee.GreaterThan(feeCap) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Entry fee must be between 0 and %d", maxEntryFee))
	}
	if !domain.ValidAsset(c.Asset) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Invalid asset: %s", c.Asset))
	}
	if c.MaxPlayers < minPlayers || c.MaxPlayers > maxPlayers {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Max players must be between %d and %d", minPlayers, maxPlayers))
	}
	if !validTopic(c.Topic) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Invalid topic: %s", c.Topic))
	}
	if !c.IsPublic && strings.TrimSpace(c.Password) == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessage("Private rooms require a password"))
	}
	return nil
}

func (s *Store) generateCodeLocked() (string, error) {
	for range [maxCodeRetries]struct{}{} {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New(errors.CodeInternal,
		errors.WithMessage("Could not allocate a room code"))
}

// Join adds the identity as a participant. Failure order: not found, not
// waiting, full, wrong password, already joined, host joining own room.
func (s *Store) Join(ctx context.Context, code string, p domain.Player, password string) (*domain.Room, error) {
	r := s.FindByCode(code)
	if r == nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()
	if r.Status != domain.StatusWaiting {
		r.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Game already started"))
	}
	if len(r.Participants) >= r.Config.MaxPlayers-1 {
		r.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Room is full"))
	}
	if !r.Config.IsPublic && password != r.Config.Password {
		r.Unlock()
		return nil, errors.New(errors.CodePermissionDenied, errors.WithMessage("Incorrect password"))
	}
	for _, existing := range r.Participants {
		if existing.Address == p.Address {
			r.Unlock()
			return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessage("Already in this room"))
		}
	}
	if r.Host.Address == p.Address {
		r.Unlock()
		return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessage("Host cannot join their own room"))
	}

	r.Participants = append(r.Participants, p)
	view := r.View()
	roomID := r.ID
	r.Unlock()

	if p.ConnID != "" {
		s.mu.Lock()
		s.conns[p.ConnID] = memberRef{roomID: roomID, address: p.Address}
		s.mu.Unlock()
	}

	s.eb.Publish(ctx, domain.EventPlayerJoined{
		RoomID: roomID,
		Player: domain.PlayerView{Address: p.Address, DisplayName: p.DisplayName, Connected: p.ConnID != ""},
		View:   view,
	})

	return r, nil
}

// Leave removes the address from the room. While waiting this is a
// structural removal (a leaving host closes the room); once the game is
// running the player is only marked absent so their score survives.
func (s *Store) Leave(ctx context.Context, roomID, address string) error {
	r := s.Get(roomID)
	if r == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()

	if r.Host.Address == address {
		if r.Status != domain.StatusWaiting {
			r.Host.ConnID = ""
			r.Unlock()
			return nil
		}
		r.Unlock()
		s.Delete(roomID)
		s.eb.Publish(ctx, domain.EventRoomClosed{RoomID: roomID, Reason: "Host left the room"})
		return nil
	}

	idx := -1
	for i, p := range r.Participants {
		if p.Address == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.Unlock()
		return errors.New(errors.CodeNotFound, errors.WithMessage("Not in this room"))
	}

	if r.Status != domain.StatusWaiting {
		r.Participants[idx].ConnID = ""
		r.Unlock()
		return nil
	}

	left := r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	r.Unlock()

	if left.ConnID != "" {
		s.mu.Lock()
		delete(s.conns, left.ConnID)
		s.mu.Unlock()
	}

	s.eb.Publish(ctx, domain.EventPlayerLeft{
		RoomID:      roomID,
		Address:     left.Address,
		DisplayName: left.DisplayName,
	})

	return nil
}

// ListPublicWaiting returns summaries of joinable public rooms, newest first.
func (s *Store) ListPublicWaiting() []domain.RoomSummary {
	s.mu.RLock()
	candidates := make([]*domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		candidates = append(candidates, r)
	}
	s.mu.RUnlock()

	type summary struct {
		domain.RoomSummary
		createdAt time.Time
	}

	out := make([]summary, 0, len(candidates))
	for _, r := range candidates {
		r.Lock()
		if r.Config.IsPublic && r.Status == domain.StatusWaiting {
			out = append(out, summary{RoomSummary: r.Summary(), createdAt: r.CreatedAt})
		}
		r.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.After(out[j].createdAt) })

	summaries := make([]domain.RoomSummary, 0, len(out))
	for _, s := range out {
		summaries = append(summaries, s.RoomSummary)
	}
	return summaries
}

func (s *Store) Get(id string) *domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rooms[id]
}

func (s *Store) FindByCode(code string) *domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.codes[code]; ok {
		return s.rooms[id]
	}
	return nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rooms)
}

// BindConnection attaches a connection id to a member of the room, e.g. on
// reconnect. Unknown addresses are ignored.
func (s *Store) BindConnection(roomID, address, connID string) {
	r := s.Get(roomID)
	if r == nil {
		return
	}

	r.Lock()
	if r.Host.Address == address {
		r.Host.ConnID = connID
	} else {
		for i := range r.Participants {
			if r.Participants[i].Address == address {
				r.Participants[i].ConnID = connID
				break
			}
		}
	}
	r.Unlock()

	s.mu.Lock()
	s.conns[connID] = memberRef{roomID: roomID, address: address}
	s.mu.Unlock()
}

type UnbindResult struct {
	RoomID      string
	Address     string
	WasHost     bool
	RoomDeleted bool
}

// UnbindConnection applies the disconnect rules: a host disconnecting from a
// waiting room closes it; a participant disconnecting from a waiting room is
// removed; mid-game disconnects only mark the player absent.
func (s *Store) UnbindConnection(ctx context.Context, connID string) UnbindResult {
	s.mu.Lock()
	ref, ok := s.conns[connID]
	delete(s.conns, connID)
	s.mu.Unlock()

	if !ok {
		return UnbindResult{}
	}

	r := s.Get(ref.roomID)
	if r == nil {
		return UnbindResult{RoomID: ref.roomID, Address: ref.address}
	}

	res := UnbindResult{RoomID: ref.roomID, Address: ref.address}

	r.Lock()

	if r.Host.Address == ref.address {
		res.WasHost = true
		if r.Status == domain.StatusWaiting {
			r.Unlock()
			s.Delete(ref.roomID)
			res.RoomDeleted = true
			s.eb.Publish(ctx, domain.EventRoomClosed{RoomID: ref.roomID, Reason: "Host disconnected"})
			return res
		}
		r.Host.ConnID = ""
		r.Unlock()
		return res
	}

	idx := -1
	for i, p := range r.Participants {
		if p.Address == ref.address {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.Unlock()
		return res
	}

	if r.Status != domain.StatusWaiting {
		r.Participants[idx].ConnID = ""
		r.Unlock()
		return res
	}

	left := r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	r.Unlock()

	s.eb.Publish(ctx, domain.EventPlayerLeft{
		RoomID:      ref.roomID,
		Address:     left.Address,
		DisplayName: left.DisplayName,
	})

	return res
}

// Delete removes the room and frees its code for reuse. Outstanding timers
// are stopped so callbacks against the dead room can't fire. Deleting an
// unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	delete(s.rooms, id)
	delete(s.codes, r.Code)
	for connID, ref := range s.conns {
		if ref.roomID == id {
			delete(s.conns, connID)
		}
	}
	telemetry.ActiveRooms.Set(float64(len(s.rooms)))
	s.mu.Unlock()

	r.Lock()
	r.StopTimers()
	r.Unlock()
}

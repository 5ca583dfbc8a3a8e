// Package api is the realtime surface: it decodes inbound commands, invokes
// the room store and match coordinator, and fans outbound events to the
// websocket hub and the redis mirror.
package api

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
	"github.com/Lokesh2Arvind/Quizchain/internal/identity"
	"github.com/Lokesh2Arvind/Quizchain/internal/match"
	"github.com/Lokesh2Arvind/Quizchain/internal/room"
)

// The closed set of inbound actions. Anything else is rejected.
const (
	ActionRoomCreate   = "room.create"
	ActionRoomJoin     = "room.join"
	ActionRoomLeave    = "room.leave"
	ActionRoomList     = "room.list"
	ActionRoomGet      = "room.get"
	ActionStartGame    = "room.startGame"
	ActionSubmitAnswer = "game.submitAnswer"
)

// Envelope is the wire shape of every inbound command.
type Envelope struct {
	Action    string          `json:"action"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// Response is the request/response reply for every inbound command.
type Response struct {
	Success   bool   `json:"success"`
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notification is the envelope for outbound broadcasts, on both the
// websocket and the redis mirror.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Binder tracks which room a connection should receive broadcasts for.
type Binder interface {
	Bind(connID, roomID string)
	Unbind(connID string)
}

type GatewayConfig struct {
	Registry    *identity.Registry
	Store       *room.Store
	Coordinator *match.Coordinator
	Binder      Binder
}

// Gateway turns decoded commands into service calls and service errors into
// failure replies.
type Gateway struct {
	reg    *identity.Registry
	store  *room.Store
	coord  *match.Coordinator
	binder Binder
}

func NewGateway(c GatewayConfig) *Gateway {
	return &Gateway{
		reg:    c.Registry,
		store:  c.Store,
		coord:  c.Coordinator,
		binder: c.Binder,
	}
}

type createRoomPayload struct {
	Address     string          `json:"address"`
	DisplayName string          `json:"displayName"`
	EntryFee    decimal.Decimal `json:"entryFee"`
	Asset       domain.Asset    `json:"asset"`
	MaxPlayers  int             `json:"maxPlayers"`
	Topic       domain.Topic    `json:"topic"`
	Password    string          `json:"password"`
	IsPublic    bool            `json:"isPublic"`
}

type joinRoomPayload struct {
	Code        string `json:"code"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type getRoomPayload struct {
	RoomID string `json:"roomId"`
}

type submitAnswerPayload struct {
	Question      int `json:"question"`
	Selected      int `json:"selected"`
	TimeRemaining int `json:"timeRemaining"`
}

// Handle processes one inbound message from a connection and returns the
// reply to send back on that same connection.
func (g *Gateway) Handle(ctx context.Context, connID string, raw []byte) Response {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{Success: false, Error: "Malformed request"}
	}

	var (
		data any
		err  error
	)

	switch env.Action {
	case ActionRoomCreate:
		data, err = g.createRoom(ctx, connID, env.Data)
	case ActionRoomJoin:
		data, err = g.joinRoom(ctx, connID, env.Data)
	case ActionRoomLeave:
		err = g.leaveRoom(ctx, connID)
	case ActionRoomList:
		data = g.store.ListPublicWaiting()
	case ActionRoomGet:
		data, err = g.getRoom(env.Data)
	case ActionStartGame:
		err = g.startGame(ctx, connID)
	case ActionSubmitAnswer:
		data, err = g.submitAnswer(ctx, connID, env.Data)
	default:
		return Response{
			Success:   false,
			Action:    env.Action,
			RequestID: env.RequestID,
			Error:     "Unknown action: " + env.Action,
		}
	}

	if err != nil {
		return Response{
			Success:   false,
			Action:    env.Action,
			RequestID: env.RequestID,
			Error:     errors.Convert(err).Message,
		}
	}

	return Response{
		Success:   true,
		Action:    env.Action,
		RequestID: env.RequestID,
		Data:      data,
	}
}

func (g *Gateway) createRoom(ctx context.Context, connID string, data json.RawMessage) (any, error) {
	var p createRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("Malformed payload"))
	}

	g.reg.Register(connID, p.Address, p.DisplayName)

	r, err := g.store.Create(ctx, room.CreateRequest{
		Host: domain.Player{
			Address:     p.Address,
			DisplayName: p.DisplayName,
			ConnID:      connID,
		},
		Config: domain.RoomConfig{
			EntryFee:   p.EntryFee,
			Asset:      p.Asset,
			MaxPlayers: p.MaxPlayers,
			Topic:      p.Topic,
			Password:   p.Password,
			IsPublic:   p.IsPublic,
		},
	})
	if err != nil {
		return nil, err
	}

	g.reg.SetRoom(connID, r.ID)
	g.binder.Bind(connID, r.ID)

	r.Lock()
	view := r.View()
	r.Unlock()
	return view, nil
}

func (g *Gateway) joinRoom(ctx context.Context, connID string, data json.RawMessage) (any, error) {
	var p joinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("Malformed payload"))
	}

	g.reg.Register(connID, p.Address, p.DisplayName)

	r, err := g.store.Join(ctx, p.Code, domain.Player{
		Address:     p.Address,
		DisplayName: p.DisplayName,
		ConnID:      connID,
	}, p.Password)
	if err != nil {
		return nil, err
	}

	g.reg.SetRoom(connID, r.ID)
	g.binder.Bind(connID, r.ID)

	r.Lock()
	view := r.View()
	r.Unlock()
	return view, nil
}

func (g *Gateway) leaveRoom(ctx context.Context, connID string) error {
	u, err := g.reg.Get(connID)
	if err != nil {
		return err
	}
	if u.RoomID == "" {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Not in a room"))
	}

	if err := g.store.Leave(ctx, u.RoomID, u.Address); err != nil {
		return err
	}

	g.reg.SetRoom(connID, "")
	g.binder.Unbind(connID)
	return nil
}

func (g *Gateway) getRoom(data json.RawMessage) (any, error) {
	var p getRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("Malformed payload"))
	}

	r := g.store.Get(p.RoomID)
	if r == nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()
	view := r.View()
	r.Unlock()
	return view, nil
}

func (g *Gateway) startGame(ctx context.Context, connID string) error {
	u, err := g.reg.Get(connID)
	if err != nil {
		return err
	}
	if u.RoomID == "" {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Not in a room"))
	}

	return g.coord.StartGame(ctx, u.RoomID, u.Address)
}

func (g *Gateway) submitAnswer(ctx context.Context, connID string, data json.RawMessage) (any, error) {
	var p submitAnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("Malformed payload"))
	}

	u, err := g.reg.Get(connID)
	if err != nil {
		return nil, err
	}
	if u.RoomID == "" {
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Not in a room"))
	}

	return g.coord.SubmitAnswer(ctx, match.SubmitAnswerRequest{
		RoomID:        u.RoomID,
		Address:       u.Address,
		Question:      p.Question,
		Selected:      p.Selected,
		TimeRemaining: p.TimeRemaining,
	})
}

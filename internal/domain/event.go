package domain

const (
	EventNameRoomCreated      = "room.created"
	EventNamePlayerJoined     = "room.playerJoined"
	EventNamePlayerLeft       = "room.playerLeft"
	EventNameRoomClosed       = "room.closed"
	EventNameRoomStatusUpdate = "room.statusUpdate"
	EventNameGameStarting     = "room.gameStarting"
	EventNameGameReady        = "game.ready"
	EventNameGameQuestion     = "game.question"
	EventNameScoreUpdate      = "game.scoreUpdate"
	EventNameGameEnded        = "game.ended"
	EventNameGameError        = "game.error"
	EventNamePrizeDistributed = "game.prizeDistributed"
)

// RoomEventNames lists every event that is broadcast to a room's members.
var RoomEventNames = []string{
	EventNameRoomCreated,
	EventNamePlayerJoined,
	EventNamePlayerLeft,
	EventNameRoomClosed,
	EventNameRoomStatusUpdate,
	EventNameGameStarting,
	EventNameGameReady,
	EventNameGameQuestion,
	EventNameScoreUpdate,
	EventNameGameEnded,
	EventNameGameError,
	EventNamePrizeDistributed,
}

// RoomEvent is implemented by every event addressed to a single room, so
// subscribers can route the broadcast without knowing the concrete type.
type RoomEvent interface {
	Name() string
	Room() string
}

type EventRoomCreated struct {
	View RoomView `json:"room"`
}

func (EventRoomCreated) Name() string   { return EventNameRoomCreated }
func (e EventRoomCreated) Room() string { return e.View.ID }

type EventPlayerJoined struct {
	RoomID string     `json:"roomId"`
	Player PlayerView `json:"player"`
	View   RoomView   `json:"room"`
}

func (EventPlayerJoined) Name() string   { return EventNamePlayerJoined }
func (e EventPlayerJoined) Room() string { return e.RoomID }

type EventPlayerLeft struct {
	RoomID      string `json:"roomId"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

func (EventPlayerLeft) Name() string   { return EventNamePlayerLeft }
func (e EventPlayerLeft) Room() string { return e.RoomID }

type EventRoomClosed struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

func (EventRoomClosed) Name() string   { return EventNameRoomClosed }
func (e EventRoomClosed) Room() string { return e.RoomID }

type EventRoomStatusUpdate struct {
	RoomID string `json:"roomId"`
	Status Status `json:"status"`
}

func (EventRoomStatusUpdate) Name() string   { return EventNameRoomStatusUpdate }
func (e EventRoomStatusUpdate) Room() string { return e.RoomID }

// EventGameStarting is the "loading" broadcast sent the moment the host's
// start call is accepted, before questions are fetched.
type EventGameStarting struct {
	RoomID string `json:"roomId"`
	Topic  Topic  `json:"topic"`
}

func (EventGameStarting) Name() string   { return EventNameGameStarting }
func (e EventGameStarting) Room() string { return e.RoomID }

type EventGameReady struct {
	RoomID            string `json:"roomId"`
	TotalQuestions    int    `json:"totalQuestions"`
	TimePerQuestion   int    `json:"timePerQuestion"`
	PointsPerQuestion int    `json:"pointsPerQuestion"`
	Topic             Topic  `json:"topic"`
}

func (EventGameReady) Name() string   { return EventNameGameReady }
func (e EventGameReady) Room() string { return e.RoomID }

// EventGameQuestion carries everything the clients need to render a
// question. The correct option index is deliberately absent.
type EventGameQuestion struct {
	RoomID     string   `json:"roomId"`
	Ordinal    int      `json:"ordinal"`
	Total      int      `json:"total"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	TimeLimit  int      `json:"timeLimit"`
	PointValue int      `json:"pointValue"`
}

func (EventGameQuestion) Name() string   { return EventNameGameQuestion }
func (e EventGameQuestion) Room() string { return e.RoomID }

type EventScoreUpdate struct {
	Leaderboard Leaderboard `json:"leaderboard"`
}

func (EventScoreUpdate) Name() string   { return EventNameScoreUpdate }
func (e EventScoreUpdate) Room() string { return e.Leaderboard.RoomID }

type EventGameEnded struct {
	RoomID         string             `json:"roomId"`
	Rankings       []LeaderboardEntry `json:"rankings"`
	TotalQuestions int                `json:"totalQuestions"`
	ElapsedSeconds int                `json:"elapsedSeconds"`
}

func (EventGameEnded) Name() string   { return EventNameGameEnded }
func (e EventGameEnded) Room() string { return e.RoomID }

type EventGameError struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

func (EventGameError) Name() string   { return EventNameGameError }
func (e EventGameError) Room() string { return e.RoomID }

type EventPrizeDistributed struct {
	RoomID  string            `json:"roomId"`
	Receipt SettlementReceipt `json:"receipt"`
}

func (EventPrizeDistributed) Name() string   { return EventNamePrizeDistributed }
func (e EventPrizeDistributed) Room() string { return e.RoomID }

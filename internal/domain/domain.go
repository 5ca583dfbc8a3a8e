package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Topic identifies a trivia category a room can be configured with.
type Topic string

const (
	TopicBitcoin  Topic = "Bitcoin"
	TopicEthereum Topic = "Ethereum"
	TopicSolana   Topic = "Solana"
	TopicDeFi     Topic = "DeFi"
	TopicNFT      Topic = "NFT"
	TopicAge      Topic = "Age"

	// Aggregate pseudo-topics: the question source fans these out across
	// the concrete topics above.
	TopicRandom Topic = "Random"
	TopicMixed  Topic = "Mixed"
)

// Asset is the token an entry fee and prize pool are denominated in.
type Asset string

const (
	AssetUSDC Asset = "USDC"
	AssetSOL  Asset = "SOL"
	AssetBONK Asset = "BONK"
)

func ValidAsset(a Asset) bool {
	switch a {
	case AssetUSDC, AssetSOL, AssetBONK:
		return true
	}
	return false
}

// Status is a room's lifecycle state. Transitions are monotonic except
// starting → waiting, which happens when the question fetch fails.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// User is the lightweight identity bound to an active connection.
type User struct {
	ConnID      string
	Address     string
	DisplayName string
	RoomID      string
}

// Player is a seat in a room: the host or a participant. ConnID is empty
// while the player is disconnected; the address never changes.
type Player struct {
	Address     string
	DisplayName string
	ConnID      string
	HasPaid     bool
}

// RoomConfig is immutable after room creation.
type RoomConfig struct {
	EntryFee   decimal.Decimal
	Asset      Asset
	MaxPlayers int
	Topic      Topic
	Password   string
	IsPublic   bool
}

// Room is the central aggregate: one match's full state. Every mutation
// must happen with the room's own lock held; the store's top-level maps
// are guarded separately so listing rooms never blocks a running match.
type Room struct {
	mu sync.Mutex

	ID           string
	Code         string
	Host         Player
	Config       RoomConfig
	Participants []Player
	Status       Status
	CreatedAt    time.Time

	// Game is nil until a start succeeds, and is never partially
	// initialized: a failed start leaves it nil.
	Game *GameData

	// One-shot timers owned by the match coordinator. Stopped on delete so
	// a dead room can't advance questions or re-delete itself.
	AdvanceTimer *time.Timer
	CleanupTimer *time.Timer
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// StopTimers cancels any outstanding timers. Callers must hold the room lock.
func (r *Room) StopTimers() {
	if r.AdvanceTimer != nil {
		r.AdvanceTimer.Stop()
		r.AdvanceTimer = nil
	}
	if r.CleanupTimer != nil {
		r.CleanupTimer.Stop()
		r.CleanupTimer = nil
	}
}

// HasAddress reports whether addr is the host or a participant.
func (r *Room) HasAddress(addr string) bool {
	if r.Host.Address == addr {
		return true
	}
	for _, p := range r.Participants {
		if p.Address == addr {
			return true
		}
	}
	return false
}

// PlayerCount is host + participants.
func (r *Room) PlayerCount() int {
	return 1 + len(r.Participants)
}

// View returns the outward-facing shape of the room. The password is never
// part of any view.
func (r *Room) View() RoomView {
	v := RoomView{
		ID:         r.ID,
		Code:       r.Code,
		Host:       playerView(r.Host),
		EntryFee:   r.Config.EntryFee,
		Asset:      r.Config.Asset,
		MaxPlayers: r.Config.MaxPlayers,
		Topic:      r.Config.Topic,
		IsPublic:   r.Config.IsPublic,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
	for _, p := range r.Participants {
		v.Participants = append(v.Participants, playerView(p))
	}
	return v
}

// Summary is the compact shape used by the public room listing.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:         r.ID,
		Code:       r.Code,
		HostName:   r.Host.DisplayName,
		EntryFee:   r.Config.EntryFee,
		Asset:      r.Config.Asset,
		Topic:      r.Config.Topic,
		Players:    r.PlayerCount(),
		MaxPlayers: r.Config.MaxPlayers,
	}
}

func playerView(p Player) PlayerView {
	return PlayerView{
		Address:     p.Address,
		DisplayName: p.DisplayName,
		Connected:   p.ConnID != "",
	}
}

type PlayerView struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
	Connected   bool   `json:"connected"`
}

type RoomView struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Host         PlayerView      `json:"host"`
	EntryFee     decimal.Decimal `json:"entryFee"`
	Asset        Asset           `json:"asset"`
	MaxPlayers   int             `json:"maxPlayers"`
	Topic        Topic           `json:"topic"`
	IsPublic     bool            `json:"isPublic"`
	Status       Status          `json:"status"`
	Participants []PlayerView    `json:"participants"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type RoomSummary struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	HostName   string          `json:"hostName"`
	EntryFee   decimal.Decimal `json:"entryFee"`
	Asset      Asset           `json:"asset"`
	Topic      Topic           `json:"topic"`
	Players    int             `json:"players"`
	MaxPlayers int             `json:"maxPlayers"`
}

// Question is immutable once fetched. CorrectIndex is never broadcast.
type Question struct {
	Ordinal          int
	Text             string
	Options          []string
	CorrectIndex     int
	Topic            Topic
	TimeLimitSeconds int
	PointValue       int
}

// Answer is a write-once record per (player, question ordinal). A second
// submission for the same ordinal is rejected, never overwritten.
type Answer struct {
	Question      int
	Selected      int
	Correct       bool
	TimeRemaining int
	Score         int
	SubmittedAt   int64
}

// GameData holds a running match. The membership snapshot (Order, Names,
// Scores) is frozen at start time; disconnects don't shrink it.
type GameData struct {
	Questions         []Question
	CurrentQuestion   int
	StartedAt         time.Time
	QuestionStartedAt time.Time

	// Order is the insertion order of players at start, host first. It is
	// the stable tie-break for leaderboard entries with equal scores.
	Order   []string
	Names   map[string]string
	Answers map[string][]Answer
	Scores  map[string]int
}

// AnswerFor returns the stored answer for a question ordinal, if any.
func (g *GameData) AnswerFor(addr string, ordinal int) (Answer, bool) {
	for _, a := range g.Answers[addr] {
		if a.Question == ordinal {
			return a, true
		}
	}
	return Answer{}, false
}

// Leaderboard is the score-descending ordering of all players in a match.
type Leaderboard struct {
	RoomID  string             `json:"roomId"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Address        string `json:"address"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// SettlementStatus is the outcome of closing a prize session.
type SettlementStatus string

const (
	SettlementPaid      SettlementStatus = "paid"
	SettlementSimulated SettlementStatus = "simulated"
	SettlementFailed    SettlementStatus = "failed"
	SettlementSkipped   SettlementStatus = "skipped"
)

// SettlementReceipt is what the ledger reports back after a match is
// settled. A failed receipt never invalidates the match result.
type SettlementReceipt struct {
	Status  SettlementStatus `json:"status"`
	TxRef   string           `json:"txRef,omitempty"`
	Message string           `json:"message,omitempty"`
	Winner  string           `json:"winner"`
	Amount  decimal.Decimal  `json:"amount"`
	Asset   Asset            `json:"asset"`
}

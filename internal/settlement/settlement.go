// Package settlement adapts the external prize custody/payout ledger.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
)

// Session is the handle for an open prize pool, keyed by room id and
// carrying the frozen player list at game start.
type Session struct {
	ID       string
	RoomID   string
	Players  []string
	EntryFee decimal.Decimal
	Asset    domain.Asset
	OpenedAt time.Time
}

// Adapter is the external settlement collaborator. Both operations fail
// non-fatally from the match's perspective: an open failure means the match
// runs without a prize pool, a close failure is surfaced as a failed receipt.
type Adapter interface {
	OpenSession(ctx context.Context, roomID string, players []string, entryFee decimal.Decimal, asset domain.Asset) (*Session, error)
	CloseSession(ctx context.Context, s *Session, winner string, prize decimal.Decimal) (domain.SettlementReceipt, error)
}

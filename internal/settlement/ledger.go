package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	// LedgerURL of the custody service. When empty the client runs in
	// simulate mode: sessions are local and every close yields a simulated
	// receipt, so matches stay playable without custody wired up.
	LedgerURL string
	APIKey    string
	Timeout   time.Duration
}

// LedgerClient talks to the external custody/payout service.
type LedgerClient struct {
	c Config

	http *http.Client
}

func NewLedgerClient(c Config) *LedgerClient {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return &LedgerClient{
		c:    c,
		http: &http.Client{Timeout: c.Timeout},
	}
}

func (l *LedgerClient) simulated() bool {
	return l.c.LedgerURL == ""
}

func (l *LedgerClient) OpenSession(ctx context.Context, roomID string, players []string, entryFee decimal.Decimal, asset domain.Asset) (*Session, error) {
	s := &Session{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		Players:  players,
		EntryFee: entryFee,
		Asset:    asset,
		OpenedAt: time.Now(),
	}

	if l.simulated() {
		return s, nil
	}

	body := map[string]any{
		"sessionId": s.ID,
		"roomId":    roomID,
		"players":   players,
		"entryFee":  entryFee,
		"asset":     asset,
	}
	if err := l.post(ctx, "/v1/sessions", body, nil); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	return s, nil
}

func (l *LedgerClient) CloseSession(ctx context.Context, s *Session, winner string, prize decimal.Decimal) (domain.SettlementReceipt, error) {
	if l.simulated() {
		return domain.SettlementReceipt{
			Status:  domain.SettlementSimulated,
			TxRef:   "sim-" + uuid.NewString(),
			Message: "Payout simulated: no ledger configured",
			Winner:  winner,
			Amount:  prize,
			Asset:   s.Asset,
		}, nil
	}

	body := map[string]any{
		"winner": winner,
		"prize":  prize,
	}

	var out struct {
		Status  string `json:"status"`
		TxRef   string `json:"txRef"`
		Message string `json:"message"`
	}
	if err := l.post(ctx, "/v1/sessions/"+s.ID+"/close", body, &out); err != nil {
		return domain.SettlementReceipt{}, fmt.Errorf("close session: %w", err)
	}

	return domain.SettlementReceipt{
		Status:  domain.SettlementStatus(out.Status),
		TxRef:   out.TxRef,
		Message: out.Message,
		Winner:  winner,
		Amount:  prize,
		Asset:   s.Asset,
	}, nil
}

func (l *LedgerClient) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.c.LedgerURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.c.APIKey)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Package match drives the per-room game loop: start validation, timed
// question dispatch, answer scoring, and the end-of-match rollup.
package match

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
	"github.com/Lokesh2Arvind/Quizchain/internal/question"
	"github.com/Lokesh2Arvind/Quizchain/internal/room"
	"github.com/Lokesh2Arvind/Quizchain/internal/settlement"
	"github.com/Lokesh2Arvind/Quizchain/internal/telemetry"
)

const (
	defaultQuestionCount = 3
	defaultStartDelay    = 3 * time.Second
	defaultGraceDelay    = 2 * time.Second
	defaultCleanupDelay  = 30 * time.Second

	settlementTimeout = 30 * time.Second
)

type Config struct {
	Store    *room.Store
	Source   question.Source
	EventBus *event.Bus

	// Settlement is optional; without it matches run with no prize pool.
	Settlement settlement.Adapter

	// QuestionCount is the quiz length requested from the source.
	QuestionCount int

	// StartDelay is the pause between the ready broadcast and question 1.
	StartDelay time.Duration

	// GraceDelay pads each question's time limit before the advance timer
	// fires, covering client submission latency.
	GraceDelay time.Duration

	// CleanupDelay is how long a completed room lingers before deletion.
	CleanupDelay time.Duration
}

// Coordinator runs every room's match. All game-state mutations happen under
// the room's own lock; timers re-fetch the room by id and no-op when it is
// gone, so a deleted room can never crash a callback.
type Coordinator struct {
	store  *room.Store
	source question.Source
	eb     *event.Bus
	stl    settlement.Adapter

	count   int
	start   time.Duration
	grace   time.Duration
	cleanup time.Duration

	mu       sync.Mutex
	sessions map[string]*settlement.Session
}

func NewCoordinator(c Config) *Coordinator {
	if c.QuestionCount <= 0 {
		c.QuestionCount = defaultQuestionCount
	}
	if c.StartDelay <= 0 {
		c.StartDelay = defaultStartDelay
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = defaultGraceDelay
	}
	if c.CleanupDelay <= 0 {
		c.CleanupDelay = defaultCleanupDelay
	}

	return &Coordinator{
		store:    c.Store,
		source:   c.Source,
		eb:       c.EventBus,
		stl:      c.Settlement,
		count:    c.QuestionCount,
		start:    c.StartDelay,
		grace:    c.GraceDelay,
		cleanup:  c.CleanupDelay,
		sessions: make(map[string]*settlement.Session),
	}
}

// StartGame begins the match. Only the host may start, only from waiting,
// and only with at least one participant. The room flips to starting before
// the question fetch so a racing second start call is rejected up front; a
// fetch failure reverts it to waiting with no game state left behind.
func (c *Coordinator) StartGame(ctx context.Context, roomID, caller string) error {
	r := c.store.Get(roomID)
	if r == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()
	if r.Host.Address != caller {
		r.Unlock()
		return errors.New(errors.CodePermissionDenied, errors.WithMessage("Only the host can start the game"))
	}
	if r.Status != domain.StatusWaiting {
		r.Unlock()
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Game already started"))
	}
	if len(r.Participants) < 1 {
		r.Unlock()
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Need at least one more player to start"))
	}

	r.Status = domain.StatusStarting
	topic := r.Config.Topic
	r.Unlock()

	c.eb.Publish(ctx, domain.EventRoomStatusUpdate{RoomID: roomID, Status: domain.StatusStarting})
	c.eb.Publish(ctx, domain.EventGameStarting{RoomID: roomID, Topic: topic})

	questions, err := c.source.Fetch(ctx, topic, c.count)
	if err != nil {
		telemetry.QuestionFetchFailures.Inc()
		c.revertStart(ctx, roomID, err)
		return err
	}

	return c.beginGame(ctx, roomID, questions)
}

// revertStart puts the room back into waiting after a failed fetch, so the
// host can retry. The room may have been deleted in the meantime.
func (c *Coordinator) revertStart(ctx context.Context, roomID string, cause error) {
	r := c.store.Get(roomID)
	if r == nil {
		return
	}

	r.Lock()
	if r.Status == domain.StatusStarting {
		r.Status = domain.StatusWaiting
	}
	r.Unlock()

	c.eb.Publish(ctx, domain.EventRoomStatusUpdate{RoomID: roomID, Status: domain.StatusWaiting})
	c.eb.Publish(ctx, domain.EventGameError{RoomID: roomID, Message: errors.Convert(cause).Message})
}

func (c *Coordinator) beginGame(ctx context.Context, roomID string, questions []domain.Question) error {
	r := c.store.Get(roomID)
	if r == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessage("Room was closed"))
	}

	r.Lock()
	if r.Status != domain.StatusStarting {
		r.Unlock()
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Start was interrupted"))
	}

	// Freeze membership for scoring: exactly host + participants right now.
	players := append([]domain.Player{r.Host}, r.Participants...)
	g := &domain.GameData{
		Questions: questions,
		StartedAt: time.Now(),
		Order:     make([]string, 0, len(players)),
		Names:     make(map[string]string, len(players)),
		Answers:   make(map[string][]domain.Answer, len(players)),
		Scores:    make(map[string]int, len(players)),
	}
	for _, p := range players {
		g.Order = append(g.Order, p.Address)
		g.Names[p.Address] = p.DisplayName
		g.Scores[p.Address] = 0
	}

	r.Game = g
	r.Status = domain.StatusInProgress
	r.AdvanceTimer = time.AfterFunc(c.start, func() {
		c.dispatchQuestion(roomID, 0)
	})

	addrs := g.Order
	fee := r.Config.EntryFee
	asset := r.Config.Asset
	ready := domain.EventGameReady{
		RoomID:            roomID,
		TotalQuestions:    len(questions),
		TimePerQuestion:   questions[0].TimeLimitSeconds,
		PointsPerQuestion: questions[0].PointValue,
		Topic:             r.Config.Topic,
	}
	r.Unlock()

	c.eb.Publish(ctx, domain.EventRoomStatusUpdate{RoomID: roomID, Status: domain.StatusInProgress})
	c.eb.Publish(ctx, ready)

	if c.stl != nil {
		go c.openSession(ctx, roomID, addrs, fee, asset)
	}

	return nil
}

// openSession opens the prize pool. Failures only log: the match proceeds
// without a pool rather than aborting.
func (c *Coordinator) openSession(ctx context.Context, roomID string, players []string, fee decimal.Decimal, asset domain.Asset) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settlementTimeout)
	defer cancel()

	s, err := c.stl.OpenSession(ctx, roomID, players, fee, asset)
	if err != nil {
		slog.ErrorContext(ctx, "match: open settlement session failed", "room", roomID, "error", err)
		return
	}

	c.mu.Lock()
	c.sessions[roomID] = s
	c.mu.Unlock()
}

// dispatchQuestion broadcasts question idx and arms the advance timer. The
// timer is the only driver of progression; answer submissions never advance
// the question.
func (c *Coordinator) dispatchQuestion(roomID string, idx int) {
	r := c.store.Get(roomID)
	if r == nil {
		return
	}

	r.Lock()
	g := r.Game
	if g == nil {
		r.Unlock()
		return
	}
	if idx >= len(g.Questions) {
		r.Unlock()
		c.finishGame(roomID)
		return
	}

	g.CurrentQuestion = idx
	g.QuestionStartedAt = time.Now()
	q := g.Questions[idx]
	total := len(g.Questions)

	d := time.Duration(q.TimeLimitSeconds)*time.Second + c.grace
	r.AdvanceTimer = time.AfterFunc(d, func() {
		c.advanceFrom(roomID, idx)
	})
	r.Unlock()

	c.eb.Publish(context.Background(), domain.EventGameQuestion{
		RoomID:     roomID,
		Ordinal:    q.Ordinal,
		Total:      total,
		Text:       q.Text,
		Options:    q.Options,
		TimeLimit:  q.TimeLimitSeconds,
		PointValue: q.PointValue,
	})
}

// advanceFrom moves past question idx when its deadline fires. The index
// recheck is the guard against double-advancement: if anything else already
// moved the match on, this timer is stale and must do nothing.
func (c *Coordinator) advanceFrom(roomID string, idx int) {
	r := c.store.Get(roomID)
	if r == nil {
		return
	}

	r.Lock()
	g := r.Game
	if g == nil || g.CurrentQuestion != idx {
		r.Unlock()
		return
	}
	g.CurrentQuestion = idx + 1
	r.Unlock()

	c.dispatchQuestion(roomID, idx+1)
}

type SubmitAnswerRequest struct {
	RoomID  string
	Address string

	// Question is the 1-based ordinal being answered.
	Question int

	// Selected is the chosen option index; -1 marks an auto-expired
	// (unanswered) question and never scores.
	Selected int

	// TimeRemaining is the client-reported seconds left at submission and
	// feeds the speed bonus as-is.
	TimeRemaining int
}

type SubmitAnswerResponse struct {
	Correct      bool `json:"correct"`
	CorrectIndex int  `json:"correctIndex"`
	Points       int  `json:"points"`
	TotalScore   int  `json:"totalScore"`
}

// SubmitAnswer records a write-once answer and rescores the leaderboard.
// A correct answer earns the question's point value plus one point per whole
// second left on the clock.
func (c *Coordinator) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	r := c.store.Get(req.RoomID)
	if r == nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()
	g := r.Game
	if g == nil {
		r.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Game is not active"))
	}
	if req.Question < 1 || req.Question > len(g.Questions) {
		r.Unlock()
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessage("Question out of range"))
	}
	if _, playing := g.Scores[req.Address]; !playing {
		r.Unlock()
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Not part of this game"))
	}
	if _, dup := g.AnswerFor(req.Address, req.Question); dup {
		r.Unlock()
		return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessage("Already answered this question"))
	}

	q := g.Questions[req.Question-1]
	correct := req.Selected >= 0 && req.Selected == q.CorrectIndex

	points := 0
	if correct {
		bonus := req.TimeRemaining
		if bonus < 0 {
			bonus = 0
		}
		points = q.PointValue + bonus
	}

	g.Answers[req.Address] = append(g.Answers[req.Address], domain.Answer{
		Question:      req.Question,
		Selected:      req.Selected,
		Correct:       correct,
		TimeRemaining: req.TimeRemaining,
		Score:         points,
		SubmittedAt:   time.Now().UnixMilli(),
	})
	g.Scores[req.Address] += points

	total := g.Scores[req.Address]
	board := leaderboardLocked(req.RoomID, g)
	r.Unlock()

	c.eb.Publish(ctx, domain.EventScoreUpdate{Leaderboard: board})

	return &SubmitAnswerResponse{
		Correct:      correct,
		CorrectIndex: q.CorrectIndex,
		Points:       points,
		TotalScore:   total,
	}, nil
}

// Leaderboard returns the current standings for an active or completed game.
func (c *Coordinator) Leaderboard(roomID string) (*domain.Leaderboard, error) {
	r := c.store.Get(roomID)
	if r == nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessage("Room not found"))
	}

	r.Lock()
	defer r.Unlock()

	if r.Game == nil {
		return nil, errors.New(errors.CodeFailedPrecondition, errors.WithMessage("Game is not active"))
	}

	board := leaderboardLocked(roomID, r.Game)
	return &board, nil
}

// leaderboardLocked builds the score-descending standings. Ties keep the
// frozen insertion order; callers must hold the room lock.
func leaderboardLocked(roomID string, g *domain.GameData) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(g.Order))
	for _, addr := range g.Order {
		entries = append(entries, domain.LeaderboardEntry{
			Address:     addr,
			DisplayName: g.Names[addr],
			Score:       g.Scores[addr],
			CorrectAnswers: lo.CountBy(g.Answers[addr], func(a domain.Answer) bool {
				return a.Correct
			}),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	return domain.Leaderboard{RoomID: roomID, Entries: entries}
}

// finishGame runs the end-of-match rollup: final rankings, the ended
// broadcast, fire-and-forget settlement, and delayed room deletion.
func (c *Coordinator) finishGame(roomID string) {
	r := c.store.Get(roomID)
	if r == nil {
		return
	}

	r.Lock()
	g := r.Game
	if g == nil || r.Status == domain.StatusCompleted {
		r.Unlock()
		return
	}

	r.Status = domain.StatusCompleted
	board := leaderboardLocked(roomID, g)
	elapsed := int(time.Since(g.StartedAt).Seconds())
	totalQuestions := len(g.Questions)
	fee := r.Config.EntryFee
	asset := r.Config.Asset
	playerCount := len(g.Order)

	r.CleanupTimer = time.AfterFunc(c.cleanup, func() {
		c.store.Delete(roomID)
	})
	r.Unlock()

	telemetry.MatchesCompleted.Inc()

	ctx := context.Background()
	c.eb.Publish(ctx, domain.EventRoomStatusUpdate{RoomID: roomID, Status: domain.StatusCompleted})
	c.eb.Publish(ctx, domain.EventGameEnded{
		RoomID:         roomID,
		Rankings:       board.Entries,
		TotalQuestions: totalQuestions,
		ElapsedSeconds: elapsed,
	})

	if c.stl == nil || len(board.Entries) == 0 {
		return
	}

	winner := board.Entries[0].Address
	prize := fee.Mul(decimal.NewFromInt(int64(playerCount)))

	c.mu.Lock()
	sess := c.sessions[roomID]
	delete(c.sessions, roomID)
	c.mu.Unlock()

	if sess == nil {
		// The pool never opened; report the skip, don't block the result.
		c.eb.Publish(ctx, domain.EventPrizeDistributed{
			RoomID: roomID,
			Receipt: domain.SettlementReceipt{
				Status:  domain.SettlementSkipped,
				Message: "No settlement session was opened",
				Winner:  winner,
				Amount:  prize,
				Asset:   asset,
			},
		})
		return
	}

	go c.settle(roomID, sess, winner, prize, asset)
}

// settle closes the prize session. A failure becomes a failed receipt; the
// match result already stands and is never re-opened.
func (c *Coordinator) settle(roomID string, sess *settlement.Session, winner string, prize decimal.Decimal, asset domain.Asset) {
	ctx, cancel := context.WithTimeout(context.Background(), settlementTimeout)
	defer cancel()

	receipt, err := c.stl.CloseSession(ctx, sess, winner, prize)
	if err != nil {
		slog.ErrorContext(ctx, "match: settlement failed", "room", roomID, "error", err)
		receipt = domain.SettlementReceipt{
			Status:  domain.SettlementFailed,
			Message: "Prize payout failed",
			Winner:  winner,
			Amount:  prize,
			Asset:   asset,
		}
	}

	c.eb.Publish(ctx, domain.EventPrizeDistributed{RoomID: roomID, Receipt: receipt})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
)

const maxConcurrent = 100

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type MirrorConfig struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

// Mirror republishes every room event onto redis pubsub, one channel per
// room, so consumers outside this process (edge nodes, bots, dashboards)
// can follow matches. Score updates additionally go to per-player channels.
type Mirror struct {
	redis  Redis
	prefix string
}

func NewMirror(c MirrorConfig) *Mirror {
	m := &Mirror{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	c.EventBus.SubscribeAll(domain.RoomEventNames, func(ctx context.Context, e event.Event) error {
		return m.publish(ctx, e)
	})

	return m
}

func (m *Mirror) publish(ctx context.Context, e event.Event) error {
	re, ok := e.(domain.RoomEvent)
	if !ok {
		return nil
	}

	b, err := json.Marshal(Notification{Event: e.Name(), Data: e})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", e.Name(), err)
	}

	if err := m.redis.Publish(ctx, m.roomChannel(re.Room()), b).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", e.Name(), err)
	}

	if su, ok := e.(domain.EventScoreUpdate); ok {
		return m.publishToPlayers(ctx, su, b)
	}

	return nil
}

// publishToPlayers mirrors a score update to each player's own channel.
func (m *Mirror) publishToPlayers(ctx context.Context, e domain.EventScoreUpdate, payload []byte) error {
	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range e.Leaderboard.Entries {
		entry := entry
		eg.Go(func() error {
			return m.redis.Publish(ctx, m.playerChannel(entry.Address), payload).Err()
		})
	}

	return eg.Wait()
}

func (m *Mirror) roomChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s", m.prefix, roomID)
}

func (m *Mirror) playerChannel(address string) string {
	return fmt.Sprintf("%s:player:%s", m.prefix, address)
}

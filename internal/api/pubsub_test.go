package api_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Lokesh2Arvind/Quizchain/internal/api"
	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
)

func TestMirror_RoomEventsReachTheRoomChannel(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	eb := event.NewBus()
	api.NewMirror(api.MirrorConfig{EventBus: eb, Redis: client, Prefix: "quizchain"})

	ctx := context.Background()
	sub := client.Subscribe(ctx, "quizchain:room:room-1")
	t.Cleanup(func() { _ = sub.Close() })

	// Wait for the subscription before publishing; pubsub has no replay.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	eb.Publish(ctx, domain.EventRoomClosed{RoomID: "room-1", Reason: "Host left the room"})

	msg := awaitMessage(t, sub)
	require.Equal(t, "quizchain:room:room-1", msg.Channel)

	var n struct {
		Event string `json:"event"`
		Data  struct {
			RoomID string `json:"roomId"`
			Reason string `json:"reason"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	require.Equal(t, domain.EventNameRoomClosed, n.Event)
	require.Equal(t, "room-1", n.Data.RoomID)
	require.Equal(t, "Host left the room", n.Data.Reason)
}

func TestMirror_ScoreUpdatesAlsoReachPlayerChannels(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	eb := event.NewBus()
	api.NewMirror(api.MirrorConfig{EventBus: eb, Redis: client, Prefix: "quizchain"})

	ctx := context.Background()
	sub := client.Subscribe(ctx,
		"quizchain:room:room-1",
		"quizchain:player:0xalice",
		"quizchain:player:0xbob",
	)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	eb.Publish(ctx, domain.EventScoreUpdate{Leaderboard: domain.Leaderboard{
		RoomID: "room-1",
		Entries: []domain.LeaderboardEntry{
			{Address: "0xalice", DisplayName: "alice", Score: 30, CorrectAnswers: 1},
			{Address: "0xbob", DisplayName: "bob", Score: 15, CorrectAnswers: 1},
		},
	}})

	channels := map[string]bool{}
	for i := 0; i < 3; i++ {
		msg := awaitMessage(t, sub)
		channels[msg.Channel] = true

		var n struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		require.Equal(t, domain.EventNameScoreUpdate, n.Event)
	}

	require.True(t, channels["quizchain:room:room-1"])
	require.True(t, channels["quizchain:player:0xalice"])
	require.True(t, channels["quizchain:player:0xbob"])
}

func awaitMessage(t *testing.T, sub *redis.PubSub) *redis.Message {
	t.Helper()

	select {
	case msg := <-sub.Channel():
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a pubsub message")
		return nil
	}
}

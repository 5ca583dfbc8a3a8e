package room_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
	"github.com/Lokesh2Arvind/Quizchain/internal/room"
)

func TestStore_Create(t *testing.T) {
	type inputs struct {
		config domain.RoomConfig
	}

	tests := map[string]struct {
		arrange func() inputs
		wantErr string
	}{
		"valid public room": {
			arrange: func() inputs {
				return inputs{config: validConfig()}
			},
		},

		"valid private room with password": {
			arrange: func() inputs {
				c := validConfig()
				c.IsPublic = false
				c.Password = "xyz"
				return inputs{config: c}
			},
		},

		"negative entry fee is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.EntryFee = decimal.NewFromInt(-1)
				return inputs{config: c}
			},
			wantErr: "Entry fee must be between 0 and 1000",
		},

		"entry fee above 1000 is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.EntryFee = decimal.NewFromInt(1001)
				return inputs{config: c}
			},
			wantErr: "Entry fee must be between 0 and 1000",
		},

		"unknown asset is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.Asset = "DOGE"
				return inputs{config: c}
			},
			wantErr: "Invalid asset: DOGE",
		},

		"max players below 2 is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.MaxPlayers = 1
				return inputs{config: c}
			},
			wantErr: "Max players must be between 2 and 10",
		},

		"max players above 10 is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.MaxPlayers = 11
				return inputs{config: c}
			},
			wantErr: "Max players must be between 2 and 10",
		},

		"unknown topic is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.Topic = "Cooking"
				return inputs{config: c}
			},
			wantErr: "Invalid topic: Cooking",
		},

		"private room with empty password is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.IsPublic = false
				c.Password = ""
				return inputs{config: c}
			},
			wantErr: "Private rooms require a password",
		},

		"private room with blank password is rejected": {
			arrange: func() inputs {
				c := validConfig()
				c.IsPublic = false
				c.Password = "   "
				return inputs{config: c}
			},
			wantErr: "Private rooms require a password",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := makeStore(t)
			in := tt.arrange()

			r, err := s.Create(context.Background(), room.CreateRequest{
				Host:   host(),
				Config: in.config,
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantErr, errors.Convert(err).Message)
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, r.ID)
			require.Len(t, r.Code, 6)
			require.Equal(t, domain.StatusWaiting, r.Status)
		})
	}
}

func TestStore_CreateRoundTrip(t *testing.T) {
	t.Parallel()

	s := makeStore(t)

	cfg := validConfig()
	cfg.IsPublic = false
	cfg.Password = "secret"

	created, err := s.Create(context.Background(), room.CreateRequest{Host: host(), Config: cfg})
	require.NoError(t, err)

	for _, r := range []*domain.Room{s.Get(created.ID), s.FindByCode(created.Code)} {
		require.NotNil(t, r)

		r.Lock()
		v := r.View()
		r.Unlock()

		require.Equal(t, created.ID, v.ID)
		require.Equal(t, created.Code, v.Code)
		require.True(t, cfg.EntryFee.Equal(v.EntryFee))
		require.Equal(t, cfg.Asset, v.Asset)
		require.Equal(t, cfg.MaxPlayers, v.MaxPlayers)
		require.Equal(t, cfg.Topic, v.Topic)
		require.Equal(t, cfg.IsPublic, v.IsPublic)
	}
}

func TestStore_Join(t *testing.T) {
	type (
		inputs struct {
			store    *room.Store
			code     string
			player   domain.Player
			password string
		}
	)

	tests := map[string]struct {
		arrange func(t *testing.T) inputs
		wantErr string
	}{
		"joining a waiting public room succeeds": {
			arrange: func(t *testing.T) inputs {
				s, r := storeWithRoom(t, validConfig())
				return inputs{store: s, code: r.Code, player: player("0xbob", "bob", "c2")}
			},
		},

		"unknown code fails": {
			arrange: func(t *testing.T) inputs {
				s, _ := storeWithRoom(t, validConfig())
				return inputs{store: s, code: "NOPE42", player: player("0xbob", "bob", "c2")}
			},
			wantErr: "Room not found",
		},

		"non-waiting room fails": {
			arrange: func(t *testing.T) inputs {
				s, r := storeWithRoom(t, validConfig())
				r.Lock()
				r.Status = domain.StatusInProgress
				r.Unlock()
				return inputs{store: s, code: r.Code, player: player("0xbob", "bob", "c2")}
			},
			wantErr: "Game already started",
		},

		"full room fails": {
			arrange: func(t *testing.T) inputs {
				cfg := validConfig()
				cfg.MaxPlayers = 2
				s, r := storeWithRoom(t, cfg)
				_, err := s.Join(context.Background(), r.Code, player("0xbob", "bob", "c2"), "")
				require.NoError(t, err)
				return inputs{store: s, code: r.Code, player: player("0xcarol", "carol", "c3")}
			},
			wantErr: "Room is full",
		},

		"wrong password fails": {
			arrange: func(t *testing.T) inputs {
				cfg := validConfig()
				cfg.IsPublic = false
				cfg.Password = "xyz"
				s, r := storeWithRoom(t, cfg)
				return inputs{store: s, code: r.Code, player: player("0xbob", "bob", "c2"), password: "abc"}
			},
			wantErr: "Incorrect password",
		},

		"correct password succeeds": {
			arrange: func(t *testing.T) inputs {
				cfg := validConfig()
				cfg.IsPublic = false
				cfg.Password = "xyz"
				s, r := storeWithRoom(t, cfg)
				return inputs{store: s, code: r.Code, player: player("0xbob", "bob", "c2"), password: "xyz"}
			},
		},

		"joining twice fails": {
			arrange: func(t *testing.T) inputs {
				s, r := storeWithRoom(t, validConfig())
				_, err := s.Join(context.Background(), r.Code, player("0xbob", "bob", "c2"), "")
				require.NoError(t, err)
				return inputs{store: s, code: r.Code, player: player("0xbob", "bob", "c4")}
			},
			wantErr: "Already in this room",
		},

		"host cannot join their own room": {
			arrange: func(t *testing.T) inputs {
				s, r := storeWithRoom(t, validConfig())
				return inputs{store: s, code: r.Code, player: player("0xhost", "host", "c5")}
			},
			wantErr: "Host cannot join their own room",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange(t)

			r, err := in.store.Join(context.Background(), in.code, in.player, in.password)

			if tt.wantErr != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantErr, errors.Convert(err).Message)
				return
			}

			require.NoError(t, err)

			r.Lock()
			defer r.Unlock()
			require.True(t, r.HasAddress(in.player.Address))
			require.LessOrEqual(t, len(r.Participants), r.Config.MaxPlayers-1)
		})
	}
}

func TestStore_Leave(t *testing.T) {
	t.Parallel()

	s, r := storeWithRoom(t, validConfig())
	_, err := s.Join(context.Background(), r.Code, player("0xbob", "bob", "c2"), "")
	require.NoError(t, err)

	err = s.Leave(context.Background(), r.ID, "0xbob")
	require.NoError(t, err)

	r.Lock()
	require.Empty(t, r.Participants)
	r.Unlock()

	err = s.Leave(context.Background(), r.ID, "0xbob")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestStore_LeaveByHostClosesWaitingRoom(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()
	closed := collectEvents(eb, domain.EventNameRoomClosed)

	s := makeStore(t, withEventBus(eb))
	r, err := s.Create(context.Background(), room.CreateRequest{Host: host(), Config: validConfig()})
	require.NoError(t, err)

	err = s.Leave(context.Background(), r.ID, "0xhost")
	require.NoError(t, err)

	require.Nil(t, s.Get(r.ID))
	require.Nil(t, s.FindByCode(r.Code))

	eb.Stop()
	require.Len(t, closed.all(), 1)
}

func TestStore_UnbindConnection(t *testing.T) {
	type outputs struct {
		res   room.UnbindResult
		store *room.Store
		room  *domain.Room
	}

	tests := map[string]struct {
		act    func(t *testing.T) outputs
		assert func(t *testing.T, out outputs)
	}{
		"host disconnect while waiting deletes the room": {
			act: func(t *testing.T) outputs {
				s, r := storeWithRoom(t, validConfig())
				res := s.UnbindConnection(context.Background(), "c1")
				return outputs{res: res, store: s, room: r}
			},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.res.WasHost)
				require.True(t, out.res.RoomDeleted)
				require.Nil(t, out.store.Get(out.room.ID))
			},
		},

		"host disconnect mid-game only marks the host absent": {
			act: func(t *testing.T) outputs {
				s, r := storeWithRoom(t, validConfig())
				r.Lock()
				r.Status = domain.StatusInProgress
				r.Unlock()
				res := s.UnbindConnection(context.Background(), "c1")
				return outputs{res: res, store: s, room: r}
			},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.res.WasHost)
				require.False(t, out.res.RoomDeleted)
				require.NotNil(t, out.store.Get(out.room.ID))

				out.room.Lock()
				defer out.room.Unlock()
				require.Empty(t, out.room.Host.ConnID)
			},
		},

		"participant disconnect while waiting removes them": {
			act: func(t *testing.T) outputs {
				s, r := storeWithRoom(t, validConfig())
				_, err := s.Join(context.Background(), r.Code, player("0xbob", "bob", "c2"), "")
				require.NoError(t, err)
				res := s.UnbindConnection(context.Background(), "c2")
				return outputs{res: res, store: s, room: r}
			},
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.res.WasHost)
				require.False(t, out.res.RoomDeleted)

				out.room.Lock()
				defer out.room.Unlock()
				require.Empty(t, out.room.Participants)
			},
		},

		"participant disconnect mid-game only marks them absent": {
			act: func(t *testing.T) outputs {
				s, r := storeWithRoom(t, validConfig())
				_, err := s.Join(context.Background(), r.Code, player("0xbob", "bob", "c2"), "")
				require.NoError(t, err)
				r.Lock()
				r.Status = domain.StatusInProgress
				r.Unlock()
				res := s.UnbindConnection(context.Background(), "c2")
				return outputs{res: res, store: s, room: r}
			},
			assert: func(t *testing.T, out outputs) {
				out.room.Lock()
				defer out.room.Unlock()
				require.Len(t, out.room.Participants, 1)
				require.Empty(t, out.room.Participants[0].ConnID)
				require.Equal(t, "0xbob", out.room.Participants[0].Address)
			},
		},

		"unknown connection is a no-op": {
			act: func(t *testing.T) outputs {
				s, r := storeWithRoom(t, validConfig())
				res := s.UnbindConnection(context.Background(), "c9")
				return outputs{res: res, store: s, room: r}
			},
			assert: func(t *testing.T, out outputs) {
				require.Empty(t, out.res.RoomID)
				require.NotNil(t, out.store.Get(out.room.ID))
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			out := tt.act(t)
			tt.assert(t, out)
		})
	}
}

func TestStore_ListPublicWaiting(t *testing.T) {
	t.Parallel()

	s := makeStore(t)

	public, err := s.Create(context.Background(), room.CreateRequest{Host: host(), Config: validConfig()})
	require.NoError(t, err)

	privateCfg := validConfig()
	privateCfg.IsPublic = false
	privateCfg.Password = "xyz"
	_, err = s.Create(context.Background(), room.CreateRequest{Host: player("0xcarol", "carol", "c3"), Config: privateCfg})
	require.NoError(t, err)

	running, err := s.Create(context.Background(), room.CreateRequest{Host: player("0xdave", "dave", "c4"), Config: validConfig()})
	require.NoError(t, err)
	running.Lock()
	running.Status = domain.StatusInProgress
	running.Unlock()

	list := s.ListPublicWaiting()
	require.Len(t, list, 1)
	require.Equal(t, public.ID, list[0].ID)
}

func TestStore_CodeReusableAfterDelete(t *testing.T) {
	t.Parallel()

	s, r := storeWithRoom(t, validConfig())
	code := r.Code

	s.Delete(r.ID)
	require.Nil(t, s.FindByCode(code))
	require.Zero(t, s.Count())

	// Deleting again is a no-op.
	s.Delete(r.ID)
}

// --- helpers ---

func makeStore(t *testing.T, opts ...option) *room.Store {
	t.Helper()

	c := room.Config{
		EventBus: event.NewBus(),
		ValidTopic: func(tp domain.Topic) bool {
			return tp == domain.TopicBitcoin || tp == domain.TopicAge
		},
	}

	for _, opt := range opts {
		opt(&c)
	}

	return room.NewStore(c)
}

type option func(*room.Config)

func withEventBus(eb *event.Bus) option {
	return func(c *room.Config) {
		c.EventBus = eb
	}
}

func storeWithRoom(t *testing.T, cfg domain.RoomConfig) (*room.Store, *domain.Room) {
	t.Helper()

	s := makeStore(t)
	r, err := s.Create(context.Background(), room.CreateRequest{Host: host(), Config: cfg})
	require.NoError(t, err)
	return s, r
}

func validConfig() domain.RoomConfig {
	return domain.RoomConfig{
		EntryFee:   decimal.NewFromInt(10),
		Asset:      domain.AssetUSDC,
		MaxPlayers: 4,
		Topic:      domain.TopicBitcoin,
		IsPublic:   true,
	}
}

func host() domain.Player {
	return player("0xhost", "host", "c1")
}

func player(addr, name, conn string) domain.Player {
	return domain.Player{Address: addr, DisplayName: name, ConnID: conn}
}

type eventSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *eventSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event{}, s.events...)
}

func collectEvents(eb *event.Bus, names ...string) *eventSink {
	s := &eventSink{}
	eb.SubscribeAll(names, func(ctx context.Context, e event.Event) error {
		s.mu.Lock()
		s.events = append(s.events, e)
		s.mu.Unlock()
		return nil
	})
	return s
}

package question_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
	"github.com/Lokesh2Arvind/Quizchain/internal/question"
)

func TestClient_Fetch(t *testing.T) {
	type inputs struct {
		client *question.Client
		topic  domain.Topic
		count  int
	}

	tests := map[string]struct {
		arrange func(t *testing.T) inputs
		wantErr string
		assert  func(t *testing.T, qs []domain.Question)
	}{
		"questions are normalized with configured limits": {
			arrange: func(t *testing.T) inputs {
				srv := provider(t, `{"questions":[
					{"question":"What is the block time?","options":["10m","1m","12s","1h"],"correctIndex":0,"topic":"Bitcoin"},
					{"question":"Who created it?","options":["Satoshi","Vitalik","Anatoly","Charlie"],"correctIndex":0,"topic":"Bitcoin"}
				]}`)
				c := question.NewClient(question.Config{
					BaseURL:          srv.URL,
					TimeLimitSeconds: 20,
					PointValue:       25,
				})
				return inputs{client: c, topic: domain.TopicBitcoin, count: 2}
			},
			assert: func(t *testing.T, qs []domain.Question) {
				require.Len(t, qs, 2)
				require.Equal(t, 1, qs[0].Ordinal)
				require.Equal(t, 2, qs[1].Ordinal)
				require.Equal(t, "What is the block time?", qs[0].Text)
				require.Equal(t, 20, qs[0].TimeLimitSeconds)
				require.Equal(t, 25, qs[0].PointValue)
				require.Equal(t, domain.TopicBitcoin, qs[0].Topic)
			},
		},

		"malformed items are dropped and ordinals renumbered": {
			arrange: func(t *testing.T) inputs {
				srv := provider(t, `{"questions":[
					{"question":"","options":["a","b","c","d"],"correctIndex":0},
					{"question":"too few options","options":["a","b"],"correctIndex":0},
					{"question":"index out of range","options":["a","b","c","d"],"correctIndex":4},
					{"question":"negative index","options":["a","b","c","d"],"correctIndex":-1},
					{"question":"keeper","options":["a","b","c","d"],"correctIndex":2}
				]}`)
				return inputs{
					client: question.NewClient(question.Config{BaseURL: srv.URL}),
					topic:  domain.TopicBitcoin,
					count:  5,
				}
			},
			assert: func(t *testing.T, qs []domain.Question) {
				require.Len(t, qs, 1)
				require.Equal(t, 1, qs[0].Ordinal)
				require.Equal(t, "keeper", qs[0].Text)
				require.Equal(t, 2, qs[0].CorrectIndex)
			},
		},

		"fewer questions than asked for is not an error": {
			arrange: func(t *testing.T) inputs {
				srv := provider(t, `{"questions":[
					{"question":"only one","options":["a","b","c","d"],"correctIndex":1}
				]}`)
				return inputs{
					client: question.NewClient(question.Config{BaseURL: srv.URL}),
					topic:  domain.TopicEthereum,
					count:  3,
				}
			},
			assert: func(t *testing.T, qs []domain.Question) {
				require.Len(t, qs, 1)
			},
		},

		"zero usable questions is an error": {
			arrange: func(t *testing.T) inputs {
				srv := provider(t, `{"questions":[]}`)
				return inputs{
					client: question.NewClient(question.Config{BaseURL: srv.URL}),
					topic:  domain.TopicSolana,
					count:  3,
				}
			},
			wantErr: "No questions available for topic Solana",
		},

		"unsupported topic never reaches the provider": {
			arrange: func(t *testing.T) inputs {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Error("provider must not be called for an invalid topic")
				}))
				t.Cleanup(srv.Close)
				return inputs{
					client: question.NewClient(question.Config{BaseURL: srv.URL}),
					topic:  domain.Topic("Astrology"),
					count:  3,
				}
			},
			wantErr: "Unsupported topic: Astrology",
		},

		"provider failure surfaces as unavailable": {
			arrange: func(t *testing.T) inputs {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))
				t.Cleanup(srv.Close)
				return inputs{
					client: question.NewClient(question.Config{BaseURL: srv.URL}),
					topic:  domain.TopicNFT,
					count:  3,
				}
			},
			wantErr: "Failed to fetch questions for topic NFT",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange(t)

			qs, err := in.client.Fetch(context.Background(), in.topic, in.count)

			if tt.wantErr != "" {
				require.Error(t, err)
				require.Equal(t, tt.wantErr, errors.Convert(err).Message)
				return
			}

			require.NoError(t, err)
			tt.assert(t, qs)
		})
	}
}

func TestClient_FetchResolvesAggregateTopics(t *testing.T) {
	t.Parallel()

	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("topic"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"questions":[{"question":"q","options":["a","b","c","d"],"correctIndex":0}]}`))
	}))
	t.Cleanup(srv.Close)

	c := question.NewClient(question.Config{BaseURL: srv.URL})

	qs, err := c.Fetch(context.Background(), domain.TopicRandom, 1)
	require.NoError(t, err)
	require.Len(t, qs, 1)

	// The provider only ever sees concrete topics.
	require.Len(t, requested, 1)
	concrete := lo.Map(c.Topics(), func(tp domain.Topic, _ int) string { return string(tp) })
	require.Contains(t, concrete, requested[0])
	require.NotEqual(t, string(domain.TopicRandom), requested[0])
	require.NotEqual(t, string(domain.TopicMixed), requested[0])

	// The resolved topic is stamped onto the questions.
	require.Equal(t, requested[0], string(qs[0].Topic))
}

func TestClient_FetchSendsAuthAndQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/questions", r.URL.Path)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		require.Equal(t, "Bitcoin", r.URL.Query().Get("topic"))
		require.Equal(t, "3", r.URL.Query().Get("count"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"questions":[{"question":"q","options":["a","b","c","d"],"correctIndex":0}]}`))
	}))
	t.Cleanup(srv.Close)

	c := question.NewClient(question.Config{BaseURL: srv.URL, APIKey: "sekrit"})

	_, err := c.Fetch(context.Background(), domain.TopicBitcoin, 3)
	require.NoError(t, err)
}

func TestClient_TopicsIncludeAggregates(t *testing.T) {
	t.Parallel()

	c := question.NewClient(question.Config{})

	require.True(t, c.IsValidTopic(domain.TopicRandom))
	require.True(t, c.IsValidTopic(domain.TopicMixed))
	require.True(t, c.IsValidTopic(domain.TopicBitcoin))
	require.False(t, c.IsValidTopic(domain.Topic("Astrology")))
}

func provider(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

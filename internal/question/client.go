package question

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultTimeLimitSeconds = 15
	defaultPointValue       = 10
)

var concreteTopics = []domain.Topic{
	domain.TopicBitcoin,
	domain.TopicEthereum,
	domain.TopicSolana,
	domain.TopicDeFi,
	domain.TopicNFT,
	domain.TopicAge,
}

var aggregateTopics = []domain.Topic{
	domain.TopicRandom,
	domain.TopicMixed,
}

type Config struct {
	// BaseURL of the question provider, e.g. "https://provider.example.com".
	BaseURL string
	APIKey  string

	// Timeout bounds every fetch; the coordinator never retries, the host does.
	Timeout time.Duration

	TimeLimitSeconds int
	PointValue       int
}

// Client fetches questions from the HTTP question provider and normalizes
// them into domain questions.
type Client struct {
	c Config

	http *http.Client
}

func NewClient(c Config) *Client {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.TimeLimitSeconds <= 0 {
		c.TimeLimitSeconds = defaultTimeLimitSeconds
	}
	if c.PointValue <= 0 {
		c.PointValue = defaultPointValue
	}

	return &Client{
		c:    c,
		http: &http.Client{Timeout: c.Timeout},
	}
}

func (c *Client) IsValidTopic(topic domain.Topic) bool {
	return lo.Contains(c.Topics(), topic)
}

func (c *Client) Topics() []domain.Topic {
	return append(append([]domain.Topic{}, concreteTopics...), aggregateTopics...)
}

type providerQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Topic        string   `json:"topic"`
}

type providerResponse struct {
	Questions []providerQuestion `json:"questions"`
}

// Fetch asks the provider for count questions. An aggregate topic is
// resolved to a random concrete topic per call. Getting fewer questions than
// asked for is fine; getting none is an error.
func (c *Client) Fetch(ctx context.Context, topic domain.Topic, count int) ([]domain.Question, error) {
	if !c.IsValidTopic(topic) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("Unsupported topic: %s", topic))
	}

	fetchTopic := topic
	if lo.Contains(aggregateTopics, topic) {
		fetchTopic = concreteTopics[rand.Intn(len(concreteTopics))]
	}

	items, err := c.request(ctx, fetchTopic, count)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("Failed to fetch questions for topic %s", topic),
			errors.WithCause(err))
	}

	questions := make([]domain.Question, 0, len(items))
	for i, item := range items {
		if item.Question == "" || len(item.Options) < 4 {
			continue
		}
		if item.CorrectIndex < 0 || item.CorrectIndex >= len(item.Options) {
			continue
		}

		questions = append(questions, domain.Question{
			Ordinal:          i + 1,
			Text:             item.Question,
			Options:          item.Options,
			CorrectIndex:     item.CorrectIndex,
			Topic:            fetchTopic,
			TimeLimitSeconds: c.c.TimeLimitSeconds,
			PointValue:       c.c.PointValue,
		})
	}

	// Re-number after dropping malformed items so ordinals stay contiguous.
	for i := range questions {
		questions[i].Ordinal = i + 1
	}

	if len(questions) == 0 {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("No questions available for topic %s", topic))
	}

	return questions, nil
}

func (c *Client) request(ctx context.Context, topic domain.Topic, count int) ([]providerQuestion, error) {
	u, err := url.Parse(c.c.BaseURL + "/v1/questions")
	if err != nil {
		return nil, fmt.Errorf("provider url: %w", err)
	}

	q := u.Query()
	q.Set("topic", string(topic))
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.c.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return pr.Questions, nil
}

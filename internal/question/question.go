// Package question adapts the external trivia question provider.
package question

import (
	"context"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
)

// Source supplies formatted questions for a topic. Implementations must
// treat partial results as success and only fail when zero questions can be
// obtained.
type Source interface {
	// Fetch returns up to count questions for the topic, ordinals assigned
	// in order starting at 1.
	Fetch(ctx context.Context, topic domain.Topic, count int) ([]domain.Question, error)

	// IsValidTopic reports whether the topic is one this source can serve,
	// including the aggregate pseudo-topics.
	IsValidTopic(topic domain.Topic) bool

	// Topics lists every topic this source accepts.
	Topics() []domain.Topic
}

package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizsync/internal/domain"
)

// QuestionLoader fetches a question set from a backing store (Postgres, files, etc).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionCache caches question sets in Redis and falls back to a loader on cache miss.
// Each set is stored in loader order as: SET quizsync:questions:{quizID} {JSON array}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	prefix string
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, prefix string, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		prefix: prefix,
		ttl:    ttl,
	}
}

// GetQuestions satisfies app.QuestionRepository.
func (c *QuestionCache) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	key := c.key(quizID)

	if questions, ok := c.cached(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.cached(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateQuestions(questions); err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return questions, nil
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		// cache write failures only cost a reload
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached copy of a question set.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, c.key(quizID)).Err()
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) key(quizID string) string {
	return c.prefix + "questions:" + quizID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

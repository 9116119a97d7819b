package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizsync/internal/domain"
)

// QuestionLoader fetches a question set from a backing store (Postgres, files, etc).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionRepository caches question sets with TTL to avoid repeated loads.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedQuestions),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateQuestions(questions); err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionLoader(sets map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := l.sets[quizID]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuizNotFound
}

// FallbackLoader serves the primary source and falls back to a secondary one
// (typically the built-in sample set) when the primary fails.
type FallbackLoader struct {
	primary  QuestionLoader
	fallback QuestionLoader
	log      *zap.Logger
}

func NewFallbackLoader(primary, fallback QuestionLoader, log *zap.Logger) *FallbackLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FallbackLoader{primary: primary, fallback: fallback, log: log}
}

func (l *FallbackLoader) LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	questions, err := l.primary.LoadQuestions(ctx, quizID)
	if err == nil && len(questions) > 0 {
		return questions, nil
	}
	l.log.Warn("primary question source unavailable, using fallback set",
		zap.String("quiz_id", quizID),
		zap.Error(err),
	)
	return l.fallback.LoadQuestions(ctx, quizID)
}

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizsync/internal/domain"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Save(session *Session)
	Get(sessionID string) (*Session, bool)
	// Take removes and returns the session; only one caller can take a given session.
	Take(sessionID string) (*Session, bool)
}

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// ResultStore persists scored attempts. *Reconciler satisfies it.
type ResultStore interface {
	Save(ctx context.Context, record domain.ResultRecord) domain.SaveOutcome
	Load(ctx context.Context) domain.FetchOutcome
}

// IdentityProvider supplies the signed-in user, or nil for guests.
type IdentityProvider interface {
	Current(ctx context.Context) (*domain.Identity, error)
}

// QuizService contains the quiz attempt use cases.
type QuizService struct {
	sessions   SessionRepository
	questions  QuestionRepository
	results    ResultStore
	scorer     *Scorer
	identities IdentityProvider
	timeLimit  time.Duration
	log        *zap.Logger
}

func NewQuizService(sessions SessionRepository, questions QuestionRepository, results ResultStore, scorer *Scorer, timeLimit time.Duration, log *zap.Logger) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{
		sessions:  sessions,
		questions: questions,
		results:   results,
		scorer:    scorer,
		timeLimit: timeLimit,
		log:       log,
	}
}

// SetIdentityProvider makes Start fall back to the stored identity when none is given.
func (s *QuizService) SetIdentityProvider(p IdentityProvider) {
	s.identities = p
}

// Start loads the question set and opens a new session for it.
func (s *QuizService) Start(ctx context.Context, quizID string, identity *domain.Identity) (*Session, error) {
	if identity == nil && s.identities != nil {
		who, err := s.identities.Current(ctx)
		if err != nil {
			s.log.Warn("identity lookup failed, continuing as guest", zap.Error(err))
		}
		identity = who
	}

	questions, err := s.questions.GetQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	session := NewSession(uuid.NewString(), quizID, identity, questions, s.timeLimit)
	s.sessions.Save(session)
	s.log.Debug("quiz session started", zap.String("session_id", session.ID()), zap.String("quiz_id", quizID))
	return session, nil
}

// Answer records one answer in an open session.
func (s *QuizService) Answer(_ context.Context, sessionID string, questionID int, value string) (domain.Progress, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Progress{}, domain.ErrSessionNotFound
	}
	return session.Answer(questionID, value)
}

// Clear drops every answer in an open session.
func (s *QuizService) Clear(_ context.Context, sessionID string) (domain.Progress, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Progress{}, domain.ErrSessionNotFound
	}
	return session.Clear(), nil
}

func (s *QuizService) Progress(_ context.Context, sessionID string) (domain.Progress, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Progress{}, domain.ErrSessionNotFound
	}
	return session.Progress(), nil
}

// Submit scores the session, persists the result and discards the session.
// Unanswered questions count as wrong; an expired session can still be submitted.
func (s *QuizService) Submit(ctx context.Context, sessionID string) (domain.SaveOutcome, error) {
	session, ok := s.sessions.Take(sessionID)
	if !ok {
		return domain.SaveOutcome{}, domain.ErrSessionNotFound
	}

	record := s.scorer.Score(session.Questions(), session.Answers(), session.Elapsed(), session.Identity())
	outcome := s.results.Save(ctx, record)
	if outcome.Err != nil {
		s.log.Warn("result saved with degraded persistence",
			zap.String("source", string(outcome.Source)),
			zap.Error(outcome.Err),
		)
	}
	return outcome, nil
}

// Reset discards the session without scoring it.
func (s *QuizService) Reset(_ context.Context, sessionID string) error {
	if _, ok := s.sessions.Take(sessionID); !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Results returns the merged result log.
func (s *QuizService) Results(ctx context.Context) domain.FetchOutcome {
	return s.results.Load(ctx)
}

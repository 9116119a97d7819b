package app

import (
	"strings"
	"sync"
	"time"

	"quizsync/internal/domain"
)

// DefaultTimeLimit applies when no time limit is configured.
const DefaultTimeLimit = 30 * time.Minute

// Session is one quiz attempt: the loaded questions, the answers given so far and
// the countdown. It is created at quiz start and discarded at submit or reset.
type Session struct {
	id        string
	quizID    string
	identity  *domain.Identity
	questions []domain.Question
	index     map[int]int
	timeLimit time.Duration
	startedAt time.Time
	now       func() time.Time

	mu      sync.RWMutex
	answers domain.AnswerSet
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id, quizID string, identity *domain.Identity, questions []domain.Question, timeLimit time.Duration) *Session {
	return NewSessionWithClock(id, quizID, identity, questions, timeLimit, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, quizID string, identity *domain.Identity, questions []domain.Question, timeLimit time.Duration, now func() time.Time) *Session {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	index := make(map[int]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	return &Session{
		id:        id,
		quizID:    quizID,
		identity:  identity,
		questions: qs,
		index:     index,
		timeLimit: timeLimit,
		startedAt: now(),
		now:       now,
		answers:   make(domain.AnswerSet),
	}
}

func (s *Session) ID() string { return s.id }
func (s *Session) QuizID() string { return s.quizID }
func (s *Session) Identity() *domain.Identity { return s.identity }
func (s *Session) TimeLimit() time.Duration { return s.timeLimit }
func (s *Session) Deadline() time.Time { return s.startedAt.Add(s.timeLimit) }
func (s *Session) Questions() []domain.Question { return s.questions }

// Answer records value for questionID. A blank value clears the answer.
func (s *Session) Answer(questionID int, value string) (domain.Progress, error) {
	i, ok := s.index[questionID]
	if !ok {
		return domain.Progress{}, domain.ErrQuestionNotFound
	}
	if s.Expired() {
		return domain.Progress{}, domain.ErrSessionExpired
	}

	q := s.questions[i]
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.TrimSpace(value) == "":
		delete(s.answers, questionID)
	case q.Kind == domain.MultipleChoice:
		if !q.HasOption(value) {
			return domain.Progress{}, domain.ErrOptionNotFound
		}
		s.answers[questionID] = value
	default:
		s.answers[questionID] = strings.TrimSpace(value)
	}
	return s.progressLocked(), nil
}

// Clear drops every answer given so far.
func (s *Session) Clear() domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(domain.AnswerSet)
	return s.progressLocked()
}

func (s *Session) Progress() domain.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() domain.Progress {
	return domain.Progress{
		Answered:  len(s.answers),
		Total:     len(s.questions),
		Remaining: s.Remaining(),
	}
}

// Answers returns a copy of the answer sheet.
func (s *Session) Answers() domain.AnswerSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(domain.AnswerSet, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Elapsed is the time spent so far, capped at the time limit.
func (s *Session) Elapsed() time.Duration {
	elapsed := s.now().Sub(s.startedAt)
	if elapsed > s.timeLimit {
		return s.timeLimit
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed.Truncate(time.Second)
}

func (s *Session) Remaining() time.Duration {
	return s.timeLimit - s.Elapsed()
}

func (s *Session) Expired() bool {
	return !s.now().Before(s.Deadline())
}

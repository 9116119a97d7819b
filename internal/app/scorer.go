package app

import (
	"math"
	"strconv"
	"strings"
	"time"

	"quizsync/internal/domain"
)

const (
	anonymousName     = "Anonymous"
	anonymousIDPrefix = "anonymous_"
)

// Scorer turns a finished answer sheet into a ResultRecord. It has no side effects.
type Scorer struct {
	now    func() time.Time
	source string
}

func NewScorer(source string) *Scorer {
	return NewScorerWithClock(source, time.Now)
}

// NewScorerWithClock allows deterministic timestamps in tests.
func NewScorerWithClock(source string, now func() time.Time) *Scorer {
	return &Scorer{now: now, source: source}
}

// Score grades answers against questions in input order.
func (s *Scorer) Score(questions []domain.Question, answers domain.AnswerSet, elapsed time.Duration, identity *domain.Identity) domain.ResultRecord {
	now := s.now()
	who := resolveIdentity(identity, now)

	total := len(questions)
	perQuestion := make([]domain.QuestionResult, 0, total)
	correctCount := 0
	var sum float64

	for i, q := range questions {
		var userAnswer *string
		if raw, ok := answers[q.ID]; ok && strings.TrimSpace(raw) != "" {
			a := raw
			userAnswer = &a
		}

		correct := userAnswer != nil && isCorrect(q, *userAnswer)
		if correct {
			correctCount++
			sum += 100 / float64(total)
		}

		perQuestion = append(perQuestion, domain.QuestionResult{
			QuestionNumber: i + 1,
			Prompt:         q.Prompt,
			UserAnswer:     userAnswer,
			CorrectAnswer:  q.CorrectAnswer,
			IsCorrect:      correct,
		})
	}

	score := int(math.Round(sum))
	if score > 100 {
		score = 100
	}

	return domain.ResultRecord{
		UserID:         who.UserID,
		UserName:       who.UserName,
		Role:           who.Role,
		Score:          score,
		CorrectCount:   correctCount,
		TotalQuestions: total,
		ElapsedTime:    domain.Elapsed(elapsed),
		CreatedAt:      now,
		PerQuestion:    perQuestion,
		Grade:          domain.GradeFor(score),
		ServerSource:   s.source,
	}
}

func isCorrect(q domain.Question, answer string) bool {
	switch q.Kind {
	case domain.MultipleChoice:
		return answer == q.CorrectAnswer
	case domain.ShortAnswer:
		return fuzzyMatch(answer, q.CorrectAnswer)
	default:
		return false
	}
}

// fuzzyMatch accepts when either normalized string contains the other.
func fuzzyMatch(answer, key string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	k := strings.ToLower(strings.TrimSpace(key))
	if a == "" || k == "" {
		return false
	}
	return strings.Contains(a, k) || strings.Contains(k, a)
}

func resolveIdentity(identity *domain.Identity, now time.Time) domain.Identity {
	var who domain.Identity
	if identity != nil {
		who = *identity
	}
	if who.UserName == "" {
		who.UserName = anonymousName
	}
	if who.Role == "" {
		who.Role = domain.RoleGuest
	}
	if who.UserID == "" {
		who.UserID = anonymousIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	}
	return who
}

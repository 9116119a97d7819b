package domain

import (
	"fmt"
	"time"
)

// QuestionKind tags the Question variant.
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multiple-choice"
	ShortAnswer    QuestionKind = "short-answer"
)

// Question is one item of a quiz. Options is only populated for MultipleChoice.
type Question struct {
	ID            int          `json:"id"`
	Kind          QuestionKind `json:"type"`
	Prompt        string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"answer"`
}

func NewMultipleChoice(id int, prompt string, options []string, answer string) Question {
	return Question{ID: id, Kind: MultipleChoice, Prompt: prompt, Options: options, CorrectAnswer: answer}
}

func NewShortAnswer(id int, prompt, answer string) Question {
	return Question{ID: id, Kind: ShortAnswer, Prompt: prompt, CorrectAnswer: answer}
}

// Validate checks that the question is a well-formed variant.
func (q Question) Validate() error {
	if q.CorrectAnswer == "" {
		return fmt.Errorf("%w: question %d has no answer key", ErrInvalidQuestion, q.ID)
	}
	switch q.Kind {
	case MultipleChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %d has no options", ErrInvalidQuestion, q.ID)
		}
		if !q.HasOption(q.CorrectAnswer) {
			return fmt.Errorf("%w: question %d answer is not an option", ErrInvalidQuestion, q.ID)
		}
	case ShortAnswer:
		if len(q.Options) > 0 {
			return fmt.Errorf("%w: short-answer question %d has options", ErrInvalidQuestion, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuestion, q.ID, q.Kind)
	}
	return nil
}

// HasOption reports whether value is one of the question's options.
func (q Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// ValidateQuestions validates every question and rejects duplicate IDs.
func ValidateQuestions(questions []Question) error {
	seen := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrInvalidQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// AnswerSet maps question IDs to the user's raw answers.
type AnswerSet map[int]string

// Role of the person taking the quiz.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleGuest   Role = "guest"
)

// Identity is the current session user as supplied by the auth layer.
type Identity struct {
	UserName string `json:"fullName"`
	Role     Role   `json:"role"`
	UserID   string `json:"username"`
}

// QuestionResult is the per-question verdict inside a ResultRecord.
type QuestionResult struct {
	QuestionNumber int     `json:"questionNumber"`
	Prompt         string  `json:"question"`
	UserAnswer     *string `json:"userAnswer"`
	CorrectAnswer  string  `json:"correctAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
}

// ResultRecord is the outcome of one completed quiz attempt.
type ResultRecord struct {
	UserID         string           `json:"userId"`
	UserName       string           `json:"username"`
	Role           Role             `json:"userRole"`
	Score          int              `json:"score"`
	CorrectCount   int              `json:"correctAnswers"`
	TotalQuestions int              `json:"totalQuestions"`
	ElapsedTime    Elapsed          `json:"timeElapsed"`
	CreatedAt      time.Time        `json:"date"`
	PerQuestion    []QuestionResult `json:"detailedResults"`
	Grade          Grade            `json:"grade"`
	ServerSource   string           `json:"serverSource,omitempty"`
	SyncNeeded     bool             `json:"needsSync"`
	SyncID         string           `json:"syncId,omitempty"`
	CloudTimestamp *time.Time       `json:"cloudTimestamp,omitempty"`
	LocalTimestamp *time.Time       `json:"localTimestamp,omitempty"`
}

// DedupKey identifies logically identical records: same user on the same UTC day.
func (r ResultRecord) DedupKey() string {
	return r.UserID + "|" + r.CreatedAt.UTC().Format("2006-01-02")
}

// ResultLog is an append-only, ordered list of results.
type ResultLog []ResultRecord

// BinDocument is the remote JSON document holding all synced results.
type BinDocument struct {
	SchoolID    string    `json:"schoolId"`
	LastUpdated time.Time `json:"lastUpdated"`
	Results     ResultLog `json:"results"`
}

// SyncState is the outcome label of the last save/load/sync attempt.
type SyncState string

const (
	SyncSuccess SyncState = "success"
	SyncFailed  SyncState = "failed"
)

// SyncStatus reflects only the most recent attempt.
type SyncStatus struct {
	Status    SyncState `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     *string   `json:"error"`
	WasOnline bool      `json:"online"`
}

// SaveSource says where a result ended up.
type SaveSource string

const (
	SourceCloud         SaveSource = "cloud"
	SourceLocal         SaveSource = "local"
	SourceLocalFallback SaveSource = "local_fallback"
)

// SaveOutcome is returned by the reconciler instead of raising remote failures.
type SaveOutcome struct {
	Source SaveSource   `json:"source"`
	Record ResultRecord `json:"record"`
	Err    error        `json:"-"`
}

// FetchOutcome carries the merged log and, on degraded loads, the reason.
type FetchOutcome struct {
	Source  SaveSource `json:"source"`
	Records ResultLog  `json:"results"`
	Err     error      `json:"-"`
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	Attempted int          `json:"attempted"`
	Synced    int          `json:"synced"`
	Failed    int          `json:"failed"`
	Errors    []string     `json:"errors,omitempty"`
	Fetch     FetchOutcome `json:"fetch"`
}

// Progress is the answered/total view of a quiz session.
type Progress struct {
	Answered  int           `json:"answered"`
	Total     int           `json:"total"`
	Remaining time.Duration `json:"remaining"`
}

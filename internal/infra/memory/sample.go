package memory

import (
	"context"

	"quizsync/internal/domain"
)

// DefaultQuizID names the built-in sample set.
const DefaultQuizID = "default"

// SampleQuestions is the hardcoded Informatika set used when no question source answers.
func SampleQuestions() []domain.Question {
	return []domain.Question{
		domain.NewMultipleChoice(1, "Apa kepanjangan dari CPU?",
			[]string{"Central Processing Unit", "Control Program Utility", "Computer Primary Unit", "Central Program Unit"},
			"Central Processing Unit"),
		domain.NewMultipleChoice(2, "Perangkat lunak sistem operasi yang dikembangkan oleh Microsoft adalah?",
			[]string{"Linux", "Windows", "macOS", "Android"},
			"Windows"),
		domain.NewMultipleChoice(3, "Bahasa pemrograman yang dikembangkan oleh Google untuk aplikasi Android adalah?",
			[]string{"Java", "Python", "Kotlin", "JavaScript"},
			"Kotlin"),
		domain.NewShortAnswer(4, "Sebutkan nama browser web yang dikembangkan oleh Google!", "Chrome"),
		domain.NewMultipleChoice(5, "Protokol yang digunakan untuk transfer file di internet adalah?",
			[]string{"HTTP", "FTP", "SMTP", "POP3"},
			"FTP"),
	}
}

// SampleLoader serves SampleQuestions for any quiz ID.
type SampleLoader struct{}

func (SampleLoader) LoadQuestions(_ context.Context, _ string) ([]domain.Question, error) {
	return SampleQuestions(), nil
}

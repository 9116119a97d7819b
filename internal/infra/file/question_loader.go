// Package file loads question sets from JSON files on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quizsync/internal/domain"
)

// QuestionLoader reads <dir>/<quizID>.json, each file holding a JSON array of questions.
type QuestionLoader struct {
	dir string
}

func NewQuestionLoader(dir string) *QuestionLoader {
	return &QuestionLoader{dir: dir}
}

func (l *QuestionLoader) LoadQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	if quizID == "" || strings.ContainsAny(quizID, `/\`) || quizID == "." || quizID == ".." {
		return nil, domain.ErrQuizNotFound
	}
	raw, err := os.ReadFile(filepath.Join(l.dir, quizID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions %s: %w", quizID, err)
	}
	return questions, nil
}

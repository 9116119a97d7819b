package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizsync/internal/app"
	"quizsync/internal/domain"
	pgstore "quizsync/internal/infra/postgres"
)

type questionWriter interface {
	SaveQuestions(ctx context.Context, quizID string, questions []domain.Question) error
}

type questionInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// NewQuestionsCmd groups question set maintenance.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage stored question sets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <quizID> <file.json>",
		Short: "Validate a JSON question set and store it in Postgres",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := readQuestionFile(args[1])
			if err != nil {
				return err
			}

			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()
			if s.pool == nil {
				return fmt.Errorf("questions import needs postgres.url")
			}
			if err := runMigrations(cmd.Context(), s.cfg, s.log); err != nil {
				return err
			}

			if err := importQuestions(cmd.Context(), pgstore.NewQuestionLoader(s.pool), s.questions, args[0], questions); err != nil {
				return err
			}
			s.log.Info("question set imported", zap.String("quiz_id", args[0]), zap.Int("questions", len(questions)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions into %s\n", len(questions), args[0])
			return nil
		},
	})
	return cmd
}

func readQuestionFile(path string) ([]domain.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question file: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode question file: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// importQuestions stores the set and drops any cached copy so the next attempt sees it.
func importQuestions(ctx context.Context, store questionWriter, cache app.QuestionRepository, quizID string, questions []domain.Question) error {
	if err := store.SaveQuestions(ctx, quizID, questions); err != nil {
		return err
	}
	if inv, ok := cache.(questionInvalidator); ok {
		if err := inv.Invalidate(ctx, quizID); err != nil {
			return fmt.Errorf("invalidate cached questions: %w", err)
		}
	}
	return nil
}

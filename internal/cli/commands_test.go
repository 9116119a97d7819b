package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizsync/internal/domain"
	"quizsync/internal/infra/memory"
	redisstore "quizsync/internal/infra/redis"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestUserCommandsPersistIdentity(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, fmt.Sprintf("redis:\n  addr: %s\nremote:\n  kind: none\nlog:\n  level: error\n", mr.Addr()))

	out, err := runCLI(t, "user", "show", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "guest\n", out)

	_, err = runCLI(t, "user", "set", "--id", "guru", "--name", "Bu Guru", "--role", "teacher", "--config", path)
	require.NoError(t, err)
	assert.True(t, mr.Exists("quizsync:currentUser"))

	out, err = runCLI(t, "user", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"username":"guru"`)
	assert.Contains(t, out, `"role":"teacher"`)

	_, err = runCLI(t, "user", "clear", "--config", path)
	require.NoError(t, err)
	out, err = runCLI(t, "user", "show", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "guest\n", out)
}

func TestUserSetRejectsBadInput(t *testing.T) {
	path := writeConfig(t, "remote:\n  kind: none\nlog:\n  level: error\n")

	_, err := runCLI(t, "user", "set", "--id", "x", "--role", "admin", "--config", path)
	assert.ErrorContains(t, err, "unknown role")

	_, err = runCLI(t, "user", "set", "--config", path)
	assert.ErrorContains(t, err, "--id")
}

func TestQuestionsImportValidatesFile(t *testing.T) {
	path := writeConfig(t, "remote:\n  kind: none\nlog:\n  level: error\n")
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id":1,"type":"multiple-choice","question":"Pick","options":["a"],"answer":"b"}]`), 0o644))
	_, err := runCLI(t, "questions", "import", "quiz-1", bad, "--config", path)
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"id":1,"type":"short-answer","question":"Browser?","answer":"Chrome"}]`), 0o644))
	_, err = runCLI(t, "questions", "import", "quiz-1", good, "--config", path)
	assert.ErrorContains(t, err, "postgres.url")

	_, err = runCLI(t, "questions", "import", "quiz-1", filepath.Join(dir, "missing.json"), "--config", path)
	assert.ErrorContains(t, err, "read question file")
}

type recordingWriter struct {
	sets map[string][]domain.Question
	err  error
}

func (w *recordingWriter) SaveQuestions(_ context.Context, quizID string, questions []domain.Question) error {
	if w.err != nil {
		return w.err
	}
	w.sets[quizID] = questions
	return nil
}

func TestImportQuestionsInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	writer := &recordingWriter{sets: map[string][]domain.Question{"quiz-1": memory.SampleQuestions()}}
	cache := redisstore.NewQuestionCache(client, memory.NewStaticQuestionLoader(writer.sets), redisstore.DefaultPrefix, time.Minute)

	ctx := context.Background()
	_, err := cache.GetQuestions(ctx, "quiz-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("quizsync:questions:quiz-1"))

	replacement := []domain.Question{domain.NewShortAnswer(7, "Browser by Mozilla?", "Firefox")}
	require.NoError(t, importQuestions(ctx, writer, cache, "quiz-1", replacement))
	assert.False(t, mr.Exists("quizsync:questions:quiz-1"))

	questions, err := cache.GetQuestions(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, replacement, questions)

	writer.err = errors.New("connection refused")
	assert.ErrorContains(t, importQuestions(ctx, writer, cache, "quiz-1", replacement), "connection refused")
	assert.True(t, mr.Exists("quizsync:questions:quiz-1"), "failed import keeps the cached set")
}

package memory

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizsync/internal/app"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := app.NewSession("s1", "default", nil, SampleQuestions(), time.Minute)
	store.Save(session)
	if got, ok := store.Get("s1"); !ok || got != session {
		t.Fatalf("expected session present")
	}

	if got, ok := store.Take("s1"); !ok || got != session {
		t.Fatalf("expected take to return the session")
	}
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed")
	}
	if _, ok := store.Take("s1"); ok {
		t.Fatalf("expected second take to miss")
	}
}

func TestSessionStoreTakeIsExclusive(t *testing.T) {
	store := NewSessionStore()
	store.Save(app.NewSession("s1", "default", nil, SampleQuestions(), time.Minute))

	var taken atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Take("s1"); ok {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := taken.Load(); got != 1 {
		t.Fatalf("expected exactly one take, got %d", got)
	}
}

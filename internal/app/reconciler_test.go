package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizsync/internal/app"
	"quizsync/internal/domain"
	"quizsync/internal/infra/memory"
	"quizsync/internal/metrics"
)

type fakeNet struct {
	online bool
}

func (n *fakeNet) Online() bool { return n.online }

// fakeRemote is an in-memory blob store with failure hooks.
type fakeRemote struct {
	mu       sync.Mutex
	bins     map[string]domain.BinDocument
	nextID   int
	creates  int
	replaces int
	readErr  error
	// replaceErr is consulted with the 1-based replace call number.
	replaceErr func(call int) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{bins: make(map[string]domain.BinDocument)}
}

func (f *fakeRemote) Create(_ context.Context, doc domain.BinDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	id := fmt.Sprintf("bin-%d", f.nextID)
	f.bins[id] = copyDoc(doc)
	return id, nil
}

func (f *fakeRemote) Read(_ context.Context, binID string) (domain.BinDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return domain.BinDocument{}, f.readErr
	}
	doc, ok := f.bins[binID]
	if !ok {
		return domain.BinDocument{}, errors.New("HTTP 404: Not Found")
	}
	return copyDoc(doc), nil
}

func (f *fakeRemote) Replace(_ context.Context, binID string, doc domain.BinDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.replaceErr != nil {
		if err := f.replaceErr(f.replaces); err != nil {
			return err
		}
	}
	f.bins[binID] = copyDoc(doc)
	return nil
}

func (f *fakeRemote) results(binID string) domain.ResultLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bins[binID].Results
}

func copyDoc(doc domain.BinDocument) domain.BinDocument {
	out := doc
	out.Results = append(domain.ResultLog(nil), doc.Results...)
	return out
}

type harness struct {
	local      *memory.KVStore
	remote     *fakeRemote
	net        *fakeNet
	reconciler *app.Reconciler
	registry   *prometheus.Registry
}

func newHarness(t *testing.T, online bool, binID string) *harness {
	t.Helper()
	h := &harness{
		local:    memory.NewKVStore(),
		remote:   newFakeRemote(),
		net:      &fakeNet{online: online},
		registry: prometheus.NewRegistry(),
	}
	if binID != "" {
		h.remote.bins[binID] = domain.BinDocument{SchoolID: "SMP_INFORMATIKA_2025"}
	}
	h.reconciler = app.NewReconciler(h.local, h.remote, h.net, app.ReconcilerConfig{
		SchoolID: "SMP_INFORMATIKA_2025",
		BinID:    binID,
	}, nil, metrics.New(h.registry))
	h.reconciler.SetClock(func() time.Time { return fixedNow })
	return h
}

func (h *harness) localLog(t *testing.T) domain.ResultLog {
	t.Helper()
	log, err := h.reconciler.LocalLog(context.Background())
	require.NoError(t, err)
	return log
}

func (h *harness) status(t *testing.T) domain.SyncStatus {
	t.Helper()
	status, ok, err := h.reconciler.Status(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "expected a sync status")
	return status
}

// counter returns the value of the named counter series carrying label value.
func (h *harness) counter(t *testing.T, name, value string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func record(userID string, day time.Time, score int) domain.ResultRecord {
	return domain.ResultRecord{
		UserID:         userID,
		UserName:       userID,
		Role:           domain.RoleStudent,
		Score:          score,
		TotalQuestions: 5,
		CreatedAt:      day,
		Grade:          domain.GradeFor(score),
	}
}

func TestSaveOfflineStoresLocally(t *testing.T) {
	h := newHarness(t, false, "")

	out := h.reconciler.Save(context.Background(), record("u1", fixedNow, 80))

	assert.Equal(t, domain.SourceLocal, out.Source)
	assert.NoError(t, out.Err)
	log := h.localLog(t)
	require.Len(t, log, 1)
	assert.True(t, log[0].SyncNeeded)
	assert.NotNil(t, log[0].LocalTimestamp)

	status := h.status(t)
	assert.Equal(t, domain.SyncFailed, status.Status)
	assert.False(t, status.WasOnline)
	assert.Zero(t, h.remote.creates)
}

func TestSaveOnlineCreatesBinAndKeepsBackup(t *testing.T) {
	h := newHarness(t, true, "")

	out := h.reconciler.Save(context.Background(), record("u1", fixedNow, 100))

	require.Equal(t, domain.SourceCloud, out.Source)
	require.NoError(t, out.Err)
	assert.NotEmpty(t, out.Record.SyncID)
	assert.NotNil(t, out.Record.CloudTimestamp)
	assert.Equal(t, 1, h.remote.creates)

	remote := h.remote.results("bin-1")
	require.Len(t, remote, 1)
	assert.Equal(t, "u1", remote[0].UserID)

	log := h.localLog(t)
	require.Len(t, log, 1)
	assert.False(t, log[0].SyncNeeded)

	var cached string
	ok, err := h.local.GetJSON(context.Background(), app.KeyBinID, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bin-1", cached)
	assert.Equal(t, domain.SyncSuccess, h.status(t).Status)

	// second save replaces the cached bin
	out = h.reconciler.Save(context.Background(), record("u2", fixedNow, 70))
	require.Equal(t, domain.SourceCloud, out.Source)
	assert.Equal(t, 1, h.remote.creates)
	assert.Equal(t, 1, h.remote.replaces)
	assert.Len(t, h.remote.results("bin-1"), 2)
}

func TestSaveRemoteFailureFallsBackToLocal(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	h.remote.readErr = errors.New("dial tcp: connection refused")

	before := len(h.localLog(t))
	out := h.reconciler.Save(context.Background(), record("u1", fixedNow, 60))

	assert.Equal(t, domain.SourceLocalFallback, out.Source)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "connection refused")

	log := h.localLog(t)
	require.Len(t, log, before+1)
	assert.True(t, log[len(log)-1].SyncNeeded)

	status := h.status(t)
	assert.Equal(t, domain.SyncFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "connection refused")
	assert.True(t, status.WasOnline)

	assert.Equal(t, 1.0, h.counter(t, "quizsync_save_outcomes_total", "local_fallback"))
}

func TestSaveWithoutRemoteStoreStaysLocal(t *testing.T) {
	local := memory.NewKVStore()
	r := app.NewReconciler(local, nil, &fakeNet{online: true}, app.ReconcilerConfig{}, nil, nil)

	out := r.Save(context.Background(), record("u1", fixedNow, 90))
	assert.Equal(t, domain.SourceLocal, out.Source)

	log, err := r.LocalLog(context.Background())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].SyncNeeded)
}

func TestLoadOfflineReturnsLocalVerbatim(t *testing.T) {
	h := newHarness(t, false, "bin-main")
	ctx := context.Background()
	h.reconciler.Save(ctx, record("u1", fixedNow, 80))
	h.reconciler.Save(ctx, record("u1", fixedNow, 90))

	out := h.reconciler.Load(ctx)
	assert.Equal(t, domain.SourceLocal, out.Source)
	assert.ErrorIs(t, out.Err, domain.ErrOffline)
	assert.Len(t, out.Records, 2)
}

func TestLoadMergesAndPersists(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	day1 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)

	remoteCopy := record("u2", day1, 70)
	remoteCopy.SyncID = "remote"
	h.remote.bins["bin-main"] = domain.BinDocument{Results: domain.ResultLog{remoteCopy}}

	localOnly := record("u1", day2, 85)
	localOnly.SyncNeeded = true
	localDup := record("u2", day1.Add(3*time.Hour), 70)
	require.NoError(t, h.local.SetJSON(ctx, app.KeyResults, domain.ResultLog{localDup, localOnly}))

	out := h.reconciler.Load(ctx)
	require.Equal(t, domain.SourceCloud, out.Source)
	require.NoError(t, out.Err)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "u1", out.Records[0].UserID, "newest first")
	assert.Equal(t, "remote", out.Records[1].SyncID, "remote copy wins")
	assert.True(t, out.Records[0].SyncNeeded)

	persisted := h.localLog(t)
	require.Len(t, persisted, 2)
	assert.Equal(t, "u1", persisted[0].UserID)
	assert.Equal(t, "remote", persisted[1].SyncID)
	assert.Equal(t, domain.SyncSuccess, h.status(t).Status)
}

func TestLoadRemoteFailureKeepsLocal(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	require.NoError(t, h.local.SetJSON(ctx, app.KeyResults, domain.ResultLog{record("u1", fixedNow, 50)}))
	h.remote.readErr = errors.New("HTTP 500: Internal Server Error")

	out := h.reconciler.Load(ctx)
	assert.Equal(t, domain.SourceLocal, out.Source)
	require.Error(t, out.Err)
	assert.Len(t, out.Records, 1)
	assert.Equal(t, domain.SyncFailed, h.status(t).Status)
}

func TestLoadWithoutBinReportsFailure(t *testing.T) {
	h := newHarness(t, true, "")
	out := h.reconciler.Load(context.Background())
	assert.ErrorIs(t, out.Err, domain.ErrNoBin)
	assert.Equal(t, domain.SourceLocal, out.Source)
}

func TestMergeIsIdempotent(t *testing.T) {
	day := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	log := domain.ResultLog{
		record("u1", day, 80),
		record("u1", day.Add(time.Hour), 90),
		record("u2", day, 70),
		record("u1", day.AddDate(0, 0, 1), 60),
	}

	once := app.Merge(log, log)
	twice := app.Merge(once, once)

	assert.Len(t, once, 3)
	assert.Equal(t, once, twice)

	keys := map[string]bool{}
	for _, rec := range once {
		assert.False(t, keys[rec.DedupKey()], "duplicate %s", rec.DedupKey())
		keys[rec.DedupKey()] = true
	}
}

func TestSyncPushesQueuedRecords(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	queued := record("u1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), 75)
	queued.SyncNeeded = true
	require.NoError(t, h.local.SetJSON(ctx, app.KeyResults, domain.ResultLog{queued}))

	report := h.reconciler.Sync(ctx)

	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.Failed)
	assert.Equal(t, domain.SourceCloud, report.Fetch.Source)

	remote := h.remote.results("bin-main")
	require.Len(t, remote, 1)
	assert.Equal(t, "u1", remote[0].UserID)
	assert.NotEmpty(t, remote[0].SyncID)

	log := h.localLog(t)
	require.Len(t, log, 1)
	assert.False(t, log[0].SyncNeeded)
	assert.Equal(t, domain.SyncSuccess, h.status(t).Status)
}

func TestSyncContinuesAfterFailure(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	h.remote.replaceErr = func(call int) error {
		if call == 1 {
			return errors.New("HTTP 503: Service Unavailable")
		}
		return nil
	}

	first := record("u1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), 75)
	first.SyncNeeded = true
	second := record("u2", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC), 95)
	second.SyncNeeded = true
	require.NoError(t, h.local.SetJSON(ctx, app.KeyResults, domain.ResultLog{first, second}))

	report := h.reconciler.Sync(ctx)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)

	flagged := map[string]bool{}
	for _, rec := range h.localLog(t) {
		flagged[rec.UserID] = rec.SyncNeeded
	}
	assert.True(t, flagged["u1"], "failed record stays queued")
	assert.False(t, flagged["u2"])
	assert.Equal(t, domain.SyncFailed, h.status(t).Status)

	// next pass retries the remaining record
	report = h.reconciler.Sync(ctx)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Synced)
	assert.Len(t, h.remote.results("bin-main"), 2)
}

func TestSyncSkipsRecordsAlreadyRemote(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	day := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	h.remote.bins["bin-main"] = domain.BinDocument{Results: domain.ResultLog{record("u1", day, 75)}}

	queued := record("u1", day, 75)
	queued.SyncNeeded = true
	require.NoError(t, h.local.SetJSON(ctx, app.KeyResults, domain.ResultLog{queued}))

	report := h.reconciler.Sync(ctx)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, h.remote.replaces)
	assert.Len(t, h.remote.results("bin-main"), 1)
	assert.False(t, h.localLog(t)[0].SyncNeeded)
}

func TestSyncOfflineDoesNothing(t *testing.T) {
	h := newHarness(t, false, "bin-main")
	ctx := context.Background()
	h.reconciler.Save(ctx, record("u1", fixedNow, 80))

	report := h.reconciler.Sync(ctx)
	assert.Zero(t, report.Attempted)
	assert.ErrorIs(t, report.Fetch.Err, domain.ErrOffline)
	assert.True(t, h.localLog(t)[0].SyncNeeded)
}

func TestSyncBroadcastsMergedLog(t *testing.T) {
	h := newHarness(t, true, "bin-main")
	ctx := context.Background()
	updates, cancel := h.reconciler.Subscribe()
	defer cancel()

	h.net.online = false
	h.reconciler.Save(ctx, record("u1", fixedNow, 80))
	h.net.online = true

	h.reconciler.Sync(ctx)

	select {
	case log := <-updates:
		require.Len(t, log, 1)
		assert.Equal(t, "u1", log[0].UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a synced broadcast")
	}
}

func TestRunSyncsWhenConnectivityRestored(t *testing.T) {
	h := newHarness(t, false, "bin-main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.reconciler.Save(ctx, record("u1", fixedNow, 80))
	updates, unsubscribe := h.reconciler.Subscribe()
	defer unsubscribe()

	restored := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.reconciler.Run(ctx, time.Hour, restored)
	}()

	h.net.online = true
	restored <- struct{}{}

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("expected sync after connectivity restored")
	}
	assert.Len(t, h.remote.results("bin-main"), 1)

	cancel()
	<-done
}

func TestEnsureRemoteCreatesOnce(t *testing.T) {
	h := newHarness(t, true, "")
	ctx := context.Background()

	id, err := h.reconciler.EnsureRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bin-1", id)

	id, err = h.reconciler.EnsureRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bin-1", id)
	assert.Equal(t, 1, h.remote.creates)

	offline := newHarness(t, false, "")
	_, err = offline.reconciler.EnsureRemote(ctx)
	assert.ErrorIs(t, err, domain.ErrOffline)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quizsync/internal/domain"
	"quizsync/internal/metrics"
)

// Keys used in the local key-value store.
const (
	KeyCurrentUser = "currentUser"
	KeyResults     = "scores"
	KeySyncStatus  = "cloud_sync_status"
	KeyBinID       = "cloud_bin_id"
)

// LocalStore is a string-keyed store of JSON values (in-memory, Redis, etc).
type LocalStore interface {
	// GetJSON decodes the value under key into dest and reports whether it existed.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// RemoteStore is a JSON blob store holding a single BinDocument per bin.
type RemoteStore interface {
	Create(ctx context.Context, doc domain.BinDocument) (string, error)
	Read(ctx context.Context, binID string) (domain.BinDocument, error)
	Replace(ctx context.Context, binID string, doc domain.BinDocument) error
}

// Connectivity reports whether the network is currently reachable.
type Connectivity interface {
	Online() bool
}

type ReconcilerConfig struct {
	SchoolID string
	// BinID seeds the remote document id until one is cached locally.
	BinID string
}

// Reconciler merges the local result log with the remote bin and decides where
// each save lands. Remote failures never escape; they are reported in outcomes
// and in the persisted SyncStatus.
type Reconciler struct {
	local   LocalStore
	remote  RemoteStore
	net     Connectivity
	cfg     ReconcilerConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	mu sync.Mutex
	sf singleflight.Group

	subMu       sync.Mutex
	subscribers map[chan domain.ResultLog]struct{}
}

// NewReconciler wires the stores. remote may be nil when no blob store is configured;
// everything is then kept locally and flagged for a later sync.
func NewReconciler(local LocalStore, remote RemoteStore, net Connectivity, cfg ReconcilerConfig, log *zap.Logger, m *metrics.Metrics) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		local:       local,
		remote:      remote,
		net:         net,
		cfg:         cfg,
		log:         log,
		metrics:     m,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		subscribers: make(map[chan domain.ResultLog]struct{}),
	}
}

// SetClock is test-only for deterministic timestamps.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Reconciler) online() bool {
	return r.remote != nil && r.net != nil && r.net.Online()
}

// Save persists a freshly scored record: remotely when possible, always locally.
func (r *Reconciler) Save(ctx context.Context, record domain.ResultRecord) domain.SaveOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.online() {
		record.SyncNeeded = true
		stored, err := r.appendLocal(ctx, record)
		r.setStatus(ctx, domain.SyncFailed, domain.ErrOffline)
		r.metrics.Save(string(domain.SourceLocal))
		r.log.Info("offline, result stored locally", zap.String("user_id", record.UserID))
		return domain.SaveOutcome{Source: domain.SourceLocal, Record: stored, Err: err}
	}

	synced, _, err := r.appendRemote(ctx, record, false)
	if err != nil {
		r.log.Warn("remote save failed, falling back to local", zap.String("user_id", record.UserID), zap.Error(err))
		record.SyncNeeded = true
		stored, localErr := r.appendLocal(ctx, record)
		r.setStatus(ctx, domain.SyncFailed, err)
		r.metrics.Save(string(domain.SourceLocalFallback))
		return domain.SaveOutcome{Source: domain.SourceLocalFallback, Record: stored, Err: errors.Join(err, localErr)}
	}

	// local backup copy
	stored, localErr := r.appendLocal(ctx, synced)
	r.setStatus(ctx, domain.SyncSuccess, nil)
	r.metrics.Save(string(domain.SourceCloud))
	r.log.Info("result saved to remote bin", zap.String("user_id", record.UserID), zap.String("sync_id", synced.SyncID))
	return domain.SaveOutcome{Source: domain.SourceCloud, Record: stored, Err: localErr}
}

// Load returns the merged view of local and remote logs.
func (r *Reconciler) Load(ctx context.Context) domain.FetchOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Reconciler) loadLocked(ctx context.Context) domain.FetchOutcome {
	local, err := r.localLog(ctx)
	if err != nil {
		r.log.Error("read local results", zap.Error(err))
	}

	if !r.online() {
		r.setStatus(ctx, domain.SyncFailed, domain.ErrOffline)
		return domain.FetchOutcome{Source: domain.SourceLocal, Records: local, Err: domain.ErrOffline}
	}

	doc, err := r.readRemote(ctx)
	if err != nil {
		r.log.Warn("remote load failed, serving local results", zap.Error(err))
		r.setStatus(ctx, domain.SyncFailed, err)
		return domain.FetchOutcome{Source: domain.SourceLocal, Records: local, Err: err}
	}

	merged := Merge(doc.Results, local)
	var persistErr error
	if err := r.local.SetJSON(ctx, KeyResults, merged); err != nil {
		persistErr = fmt.Errorf("persist merged results: %w", err)
		r.log.Error("persist merged results", zap.Error(err))
	}
	r.setStatus(ctx, domain.SyncSuccess, nil)
	return domain.FetchOutcome{Source: domain.SourceCloud, Records: merged, Err: persistErr}
}

// Sync pushes every queued local record, then refreshes the merged view and
// broadcasts it to subscribers. Concurrent callers share one pass.
func (r *Reconciler) Sync(ctx context.Context) domain.SyncReport {
	v, _, _ := r.sf.Do("sync", func() (interface{}, error) {
		return r.syncOnce(ctx), nil
	})
	return v.(domain.SyncReport)
}

func (r *Reconciler) syncOnce(ctx context.Context) domain.SyncReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.online() {
		local, _ := r.localLog(ctx)
		r.setStatus(ctx, domain.SyncFailed, domain.ErrOffline)
		return domain.SyncReport{Fetch: domain.FetchOutcome{Source: domain.SourceLocal, Records: local, Err: domain.ErrOffline}}
	}

	report := domain.SyncReport{}
	entries, err := r.localLog(ctx)
	if err != nil {
		r.log.Error("read local results for sync", zap.Error(err))
		r.setStatus(ctx, domain.SyncFailed, err)
		report.Errors = append(report.Errors, err.Error())
		report.Fetch = domain.FetchOutcome{Source: domain.SourceLocal, Err: err}
		return report
	}

	var firstErr error
	for i := range entries {
		if !entries[i].SyncNeeded {
			continue
		}
		report.Attempted++
		synced, appended, err := r.appendRemote(ctx, entries[i], true)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			if firstErr == nil {
				firstErr = err
			}
			r.metrics.Synced(false)
			r.log.Warn("sync record failed", zap.String("user_id", entries[i].UserID), zap.Error(err))
			continue
		}
		entries[i] = synced
		report.Synced++
		r.metrics.Synced(true)
		if !appended {
			r.log.Debug("record already present remotely", zap.String("user_id", synced.UserID))
		}
	}

	if report.Attempted > 0 {
		if err := r.local.SetJSON(ctx, KeyResults, entries); err != nil {
			r.log.Error("persist synced flags", zap.Error(err))
			report.Errors = append(report.Errors, err.Error())
		}
	}

	report.Fetch = r.loadLocked(ctx)
	if firstErr != nil {
		r.setStatus(ctx, domain.SyncFailed, firstErr)
	}
	if report.Fetch.Source == domain.SourceCloud {
		r.broadcast(report.Fetch.Records)
	}

	r.log.Info("sync pass finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
	)
	return report
}

// EnsureRemote creates the remote bin when none is known and returns its id.
func (r *Reconciler) EnsureRemote(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binID, err := r.binID(ctx)
	if err != nil {
		return "", err
	}
	if binID != "" {
		return binID, nil
	}
	if !r.online() {
		return "", domain.ErrOffline
	}

	doc := domain.BinDocument{SchoolID: r.cfg.SchoolID, LastUpdated: r.now(), Results: domain.ResultLog{}}
	start := time.Now()
	binID, err = r.remote.Create(ctx, doc)
	r.metrics.ObserveRemote("create", start, err)
	if err != nil {
		return "", fmt.Errorf("create remote bin: %w", err)
	}
	if err := r.local.SetJSON(ctx, KeyBinID, binID); err != nil {
		return binID, fmt.Errorf("cache bin id: %w", err)
	}
	r.log.Info("remote bin created", zap.String("bin_id", binID))
	return binID, nil
}

// Status returns the last recorded SyncStatus, if any.
func (r *Reconciler) Status(ctx context.Context) (domain.SyncStatus, bool, error) {
	var status domain.SyncStatus
	ok, err := r.local.GetJSON(ctx, KeySyncStatus, &status)
	return status, ok, err
}

// LocalLog returns the local log verbatim.
func (r *Reconciler) LocalLog(ctx context.Context) (domain.ResultLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localLog(ctx)
}

// Run syncs on every tick and whenever connectivity is restored, until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, restored <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.online() {
				r.Sync(ctx)
			}
		case _, ok := <-restored:
			if !ok {
				restored = nil
				continue
			}
			r.log.Info("connectivity restored, starting sync")
			r.Sync(ctx)
		}
	}
}

// Subscribe returns a channel receiving the merged log after each sync pass.
// The caller must invoke the returned cancel function to avoid leaks.
func (r *Reconciler) Subscribe() (<-chan domain.ResultLog, func()) {
	ch := make(chan domain.ResultLog, 4)

	r.subMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Reconciler) broadcast(log domain.ResultLog) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subscribers {
		select {
		case ch <- log:
		default:
			// drop the stale update so the newest one fits
			select {
			case <-ch:
			default:
			}
			ch <- log
		}
	}
}

// appendRemote reads the bin, appends record and writes the whole document back.
// With skipExisting, a record whose duplicate is already stored is reported as
// synced without writing.
func (r *Reconciler) appendRemote(ctx context.Context, record domain.ResultRecord, skipExisting bool) (domain.ResultRecord, bool, error) {
	binID, err := r.binID(ctx)
	if err != nil {
		return record, false, err
	}

	var doc domain.BinDocument
	if binID != "" {
		doc, err = r.readBin(ctx, binID)
		if err != nil {
			return record, false, err
		}
	}

	if skipExisting {
		key := record.DedupKey()
		for _, existing := range doc.Results {
			if existing.DedupKey() == key {
				record.SyncNeeded = false
				return record, false, nil
			}
		}
	}

	now := r.now()
	record.SyncID = r.newID()
	record.CloudTimestamp = &now
	record.SyncNeeded = false

	doc.SchoolID = r.cfg.SchoolID
	doc.LastUpdated = now
	doc.Results = append(doc.Results, record)

	if binID == "" {
		start := time.Now()
		newID, err := r.remote.Create(ctx, doc)
		r.metrics.ObserveRemote("create", start, err)
		if err != nil {
			return record, false, fmt.Errorf("create remote bin: %w", err)
		}
		if err := r.local.SetJSON(ctx, KeyBinID, newID); err != nil {
			r.log.Error("cache bin id", zap.String("bin_id", newID), zap.Error(err))
		}
		return record, true, nil
	}

	start := time.Now()
	err = r.remote.Replace(ctx, binID, doc)
	r.metrics.ObserveRemote("replace", start, err)
	if err != nil {
		return record, false, fmt.Errorf("replace remote bin: %w", err)
	}
	return record, true, nil
}

func (r *Reconciler) readRemote(ctx context.Context) (domain.BinDocument, error) {
	binID, err := r.binID(ctx)
	if err != nil {
		return domain.BinDocument{}, err
	}
	if binID == "" {
		return domain.BinDocument{}, domain.ErrNoBin
	}
	return r.readBin(ctx, binID)
}

func (r *Reconciler) readBin(ctx context.Context, binID string) (domain.BinDocument, error) {
	start := time.Now()
	doc, err := r.remote.Read(ctx, binID)
	r.metrics.ObserveRemote("read", start, err)
	if err != nil {
		return domain.BinDocument{}, fmt.Errorf("read remote bin: %w", err)
	}
	return doc, nil
}

func (r *Reconciler) binID(ctx context.Context) (string, error) {
	var id string
	ok, err := r.local.GetJSON(ctx, KeyBinID, &id)
	if err != nil {
		return "", fmt.Errorf("read cached bin id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}
	return r.cfg.BinID, nil
}

func (r *Reconciler) localLog(ctx context.Context) (domain.ResultLog, error) {
	var entries domain.ResultLog
	if _, err := r.local.GetJSON(ctx, KeyResults, &entries); err != nil {
		return nil, fmt.Errorf("read local results: %w", err)
	}
	return entries, nil
}

func (r *Reconciler) appendLocal(ctx context.Context, record domain.ResultRecord) (domain.ResultRecord, error) {
	now := r.now()
	record.LocalTimestamp = &now

	entries, err := r.localLog(ctx)
	if err != nil {
		r.log.Error("local log unreadable, starting a new one", zap.Error(err))
		entries = nil
	}
	entries = append(entries, record)
	if err := r.local.SetJSON(ctx, KeyResults, entries); err != nil {
		r.log.Error("write local results", zap.Error(err))
		return record, fmt.Errorf("write local results: %w", err)
	}
	return record, nil
}

func (r *Reconciler) setStatus(ctx context.Context, state domain.SyncState, cause error) {
	status := domain.SyncStatus{
		Status:    state,
		Timestamp: r.now(),
		WasOnline: r.net != nil && r.net.Online(),
	}
	if cause != nil {
		msg := cause.Error()
		status.Error = &msg
	}
	if err := r.local.SetJSON(ctx, KeySyncStatus, status); err != nil {
		r.log.Error("write sync status", zap.Error(err))
	}
}

// Merge returns the union of remote and local logs without duplicates (same user,
// same day), remote copies winning, newest first.
func Merge(remote, local domain.ResultLog) domain.ResultLog {
	merged := make(domain.ResultLog, 0, len(remote)+len(local))
	seen := make(map[string]struct{}, len(remote)+len(local))
	add := func(rec domain.ResultRecord) {
		key := rec.DedupKey()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, rec)
	}
	for _, rec := range remote {
		add(rec)
	}
	for _, rec := range local {
		add(rec)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/observability"
	"github.com/PaulBabatuyi/filesync/internal/storage"
	"go.uber.org/zap"
)

// BlobLister is the part of the blob store the reconciler needs.
type BlobLister interface {
	ListBlobs() ([]storage.BlobInfo, error)
	DeleteBlob(storedName string) error
}

// RecordIndex reports which stored names have a metadata record.
type RecordIndex interface {
	StoredNames(ctx context.Context) (map[string]struct{}, error)
}

type ReconcilerConfig struct {
	Blobs   BlobLister
	Records RecordIndex
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Interval time.Duration // zero disables the loop; RunOnce still works
	Grace    time.Duration // orphans younger than this are left alone
}

// Report summarizes one reconcile pass.
type Report struct {
	Blobs          int
	Records        int
	OrphansRemoved  []string
	OrphansYoung    int
	PartialsRemoved []string
	MissingBlobs    []string
}

// Reconciler periodically removes blobs that have no metadata record, sweeps
// temp files left by interrupted writes, and reports records whose blob is
// missing. It never deletes metadata.
type Reconciler struct {
	config *ReconcilerConfig
	now    func() time.Time

	mu   sync.Mutex // one pass at a time
	done chan struct{}
	wg   sync.WaitGroup
}

func NewReconciler(config *ReconcilerConfig) *Reconciler {
	if config.Grace < 0 {
		config.Grace = 0
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Reconciler{
		config: config,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the ticker loop. It returns immediately and does nothing if
// the interval is zero.
func (r *Reconciler) Start(ctx context.Context) {
	if r.config.Interval <= 0 {
		r.config.Logger.Info("reconciler disabled")
		return
	}
	r.wg.Add(1)
	go r.run(ctx)
	r.config.Logger.Info("reconciler started",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("grace", r.config.Grace),
	)
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.wg.Wait()
	r.config.Logger.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.config.Logger.Error("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report

	// records first: a blob written after this snapshot is young and skipped
	names, err := r.config.Records.StoredNames(ctx)
	if err != nil {
		return report, fmt.Errorf("load stored names: %w", err)
	}
	blobs, err := r.config.Blobs.ListBlobs()
	if err != nil {
		return report, fmt.Errorf("list blobs: %w", err)
	}
	report.Records = len(names)
	report.Blobs = len(blobs)

	cutoff := r.now().Add(-r.config.Grace)
	onDisk := make(map[string]struct{}, len(blobs))
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if b.Partial {
			report.Blobs--
			if b.ModTime.Before(cutoff) && r.remove(b, "removed stale partial write") {
				report.PartialsRemoved = append(report.PartialsRemoved, b.Name)
			}
			continue
		}
		onDisk[b.Name] = struct{}{}
		if _, ok := names[b.Name]; ok {
			continue
		}
		if b.ModTime.After(cutoff) {
			report.OrphansYoung++
			continue
		}
		if r.remove(b, "removed orphan blob") {
			report.OrphansRemoved = append(report.OrphansRemoved, b.Name)
		}
	}

	missing, err := r.missingBlobs(ctx, names, onDisk)
	if err != nil {
		return report, err
	}
	report.MissingBlobs = missing

	if m := r.config.Metrics; m != nil {
		m.OrphansRemoved.Add(float64(len(report.OrphansRemoved)))
		m.MissingBlobs.Set(float64(len(report.MissingBlobs)))
	}

	r.config.Logger.Debug("reconcile pass complete",
		zap.Int("blobs", report.Blobs),
		zap.Int("records", report.Records),
		zap.Int("orphans_removed", len(report.OrphansRemoved)),
		zap.Int("partials_removed", len(report.PartialsRemoved)),
		zap.Int("missing_blobs", len(report.MissingBlobs)),
	)
	return report, nil
}

func (r *Reconciler) remove(b storage.BlobInfo, msg string) bool {
	if err := r.config.Blobs.DeleteBlob(b.Name); err != nil {
		r.config.Logger.Warn("failed to remove blob", zap.String("name", b.Name), zap.Error(err))
		return false
	}
	r.config.Logger.Info(msg,
		zap.String("name", b.Name),
		zap.Int64("size", b.Size),
		zap.Time("mod_time", b.ModTime),
	)
	return true
}

// missingBlobs returns recorded names with no blob on disk. Candidates are
// checked against a fresh snapshot so a delete that has removed the blob but
// not yet the record is not reported.
func (r *Reconciler) missingBlobs(ctx context.Context, names, onDisk map[string]struct{}) ([]string, error) {
	var candidates []string
	for name := range names {
		if _, ok := onDisk[name]; !ok {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	current, err := r.config.Records.StoredNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload stored names: %w", err)
	}
	var missing []string
	for _, name := range candidates {
		if _, ok := current[name]; !ok {
			r.config.Logger.Debug("record removed during pass", zap.String("stored_name", name))
			continue
		}
		r.config.Logger.Error("record without blob", zap.String("stored_name", name))
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing, nil
}

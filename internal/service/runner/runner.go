// Package runner drives batch download runs: it iterates dataset rows,
// applies the destination-path policy and the resume-skip rule, invokes the
// fetcher per row and reports a deterministic Idle/Running/Paused state
// machine to observers.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aymanshehab/imgfetch/internal/common"
	"github.com/aymanshehab/imgfetch/internal/config"
	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/aymanshehab/imgfetch/internal/pause"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	serviceName = "runner"

	historyTimeout = 5 * time.Second
)

type DatasetReader interface {
	ReadDataset(path string) (*entity.Dataset, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) error
}

// EventSink receives the ordered, human-readable run log lines.
type EventSink interface {
	Emit(event entity.LogEvent)
}

// HistoryRecorder persists finished run summaries. Optional.
type HistoryRecorder interface {
	SaveRun(ctx context.Context, summary *entity.RunSummary) error
}

// StateListener is invoked with the new state on every transition. Calls
// are delivered by a single dispatcher goroutine, in transition order.
type StateListener func(state entity.RunState)

type Runner struct {
	cfg     *config.RunConfig
	fs      afero.Fs
	reader  DatasetReader
	fetcher Fetcher
	gate    *pause.Gate
	sink    EventSink
	history HistoryRecorder
	log     *slog.Logger

	mu       sync.Mutex
	state    entity.RunState
	runID    string
	counters entity.RunCounters
	last     *entity.RunSummary

	lmu       sync.RWMutex
	listeners []StateListener

	notifyCh chan entity.RunState
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner builds a controller. The gate is created here and handed to
// the fetcher by the caller; no package-level pause state exists, so two
// runners in one process never share a signal.
func NewRunner(cfg *config.RunConfig, fs afero.Fs, gate *pause.Gate, reader DatasetReader, fetcher Fetcher, sink EventSink, history HistoryRecorder, log *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		cfg:      cfg,
		fs:       fs,
		reader:   reader,
		fetcher:  fetcher,
		gate:     gate,
		sink:     sink,
		history:  history,
		log:      log.With(slog.String("service", serviceName)),
		state:    entity.RunStateIdle,
		notifyCh: make(chan entity.RunState, 16),
		cancel:   cancel,
	}

	r.wg.Add(1)
	go r.stateBroadcaster(ctx)

	return r
}

func (r *Runner) AddStateListener(listener StateListener) {
	r.lmu.Lock()
	defer r.lmu.Unlock()

	r.listeners = append(r.listeners, listener)
}

// StartRun resets the counters, clears the gate, transitions to Running
// and spawns the worker fire-and-forget. Exactly one run may be active.
func (r *Runner) StartRun(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state != entity.RunStateIdle {
		r.mu.Unlock()

		return "", common.ErrRunAlreadyActive
	}

	runID := uuid.New().String()
	r.runID = runID
	r.counters = entity.RunCounters{}
	r.state = entity.RunStateRunning
	r.mu.Unlock()

	r.gate.Clear()
	r.notify(entity.RunStateRunning)

	r.log.Info("Run started", slog.String("run_id", runID), slog.String("dataset", r.cfg.DatasetPath))

	go r.run(ctx, runID)

	return runID, nil
}

// Pause raises the gate. A no-op unless Running; the in-flight chunk write
// finishes, the next one blocks.
func (r *Runner) Pause() {
	r.mu.Lock()
	if r.state != entity.RunStateRunning {
		r.mu.Unlock()

		return
	}
	r.state = entity.RunStatePaused
	r.mu.Unlock()

	r.gate.Raise()
	r.emit(entity.EventInfo, "Paused by user.")
	r.notify(entity.RunStatePaused)
}

// Resume clears the gate. A no-op unless Paused.
func (r *Runner) Resume() {
	r.mu.Lock()
	if r.state != entity.RunStatePaused {
		r.mu.Unlock()

		return
	}
	r.state = entity.RunStateRunning
	r.mu.Unlock()

	r.gate.Clear()
	r.emit(entity.EventInfo, "Download resumed.")
	r.notify(entity.RunStateRunning)
}

func (r *Runner) State() entity.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Runner) Snapshot() entity.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return entity.RunStatus{
		State:    r.state.String(),
		RunID:    r.runID,
		Counters: r.counters,
		LastRun:  r.last,
	}
}

// Close stops the listener dispatcher. It does not interrupt an active
// run; there is no hard-cancel, pausing only suspends.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

// run is the worker context. Nothing above row granularity escapes it; a
// per-row fault never aborts the batch.
func (r *Runner) run(ctx context.Context, runID string) {
	summary := &entity.RunSummary{
		ID:          runID,
		DatasetPath: r.cfg.DatasetPath,
		OutputDir:   r.cfg.OutputDir,
		StartedAt:   time.Now(),
	}

	r.emit(entity.EventInfo, "--- Starting download process ---")
	r.emit(entity.EventInfo, fmt.Sprintf("Output directory: %s", r.cfg.OutputDir))

	dataset, urlColumn, nameColumn, err := r.setup()
	if err != nil {
		summary.SetupError = err.Error()
		r.finish(summary)

		return
	}

	r.emit(entity.EventSuccess, fmt.Sprintf("Data loaded successfully. Total rows: %d", len(dataset.Rows)))

	for i, row := range dataset.Rows {
		if err := r.gate.Wait(ctx); err != nil {
			r.log.Error("Run interrupted", slog.String("run_id", runID), slog.Any("error", err))

			break
		}

		r.processRow(ctx, entity.DownloadTask{
			Index:   i + 1,
			RawName: strings.TrimSpace(row[nameColumn]),
			URL:     strings.TrimSpace(row[urlColumn]),
		})
	}

	r.emit(entity.EventInfo, "--- Download summary ---")

	counters := r.countersSnapshot()
	r.emit(entity.EventSuccess, fmt.Sprintf("Completed. Total successful downloads: %d", counters.Succeeded))
	if counters.Failed > 0 {
		r.emit(entity.EventWarning, fmt.Sprintf("Warning: %d downloads failed.", counters.Failed))
	}
	r.emit(entity.EventInfo, fmt.Sprintf("Output files saved to: %s", r.cfg.OutputDir))

	r.finish(summary)
}

// setup validates configuration, creates the output directory and loads
// the dataset. Any failure here is run-fatal but not process-fatal.
func (r *Runner) setup() (*entity.Dataset, string, string, error) {
	if r.cfg.DatasetPath == "" || r.cfg.OutputDir == "" || r.cfg.URLColumn == "" || r.cfg.NameColumn == "" {
		err := fmt.Errorf("dataset path, output directory and column names must all be set")
		r.emit(entity.EventError, fmt.Sprintf("Error: %s", err))

		return nil, "", "", err
	}

	if err := r.fs.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		r.emit(entity.EventError, fmt.Sprintf("Error creating output folder: %s", err))

		return nil, "", "", fmt.Errorf("cannot create output folder: %w", err)
	}

	dataset, err := r.reader.ReadDataset(r.cfg.DatasetPath)
	if err != nil {
		r.emit(entity.EventError, fmt.Sprintf("Error reading file: %s", err))

		return nil, "", "", fmt.Errorf("cannot read dataset: %w", err)
	}

	urlColumn := r.cfg.URLColumn
	if dataset.URLColumn != "" {
		urlColumn = dataset.URLColumn
	}
	nameColumn := r.cfg.NameColumn
	if dataset.NameColumn != "" {
		nameColumn = dataset.NameColumn
	}

	if !dataset.HasColumn(urlColumn) || !dataset.HasColumn(nameColumn) {
		r.emit(entity.EventError, "Column name not found.")
		r.emit(entity.EventError, fmt.Sprintf("Available columns: %s", strings.Join(dataset.Columns, ", ")))

		return nil, "", "", fmt.Errorf("%w: need %q and %q", common.ErrDatasetColumnNotFound, urlColumn, nameColumn)
	}

	return dataset, urlColumn, nameColumn, nil
}

func (r *Runner) processRow(ctx context.Context, task entity.DownloadTask) {
	if task.URL == "" {
		r.emit(entity.EventWarning, fmt.Sprintf("Skipping row %d: URL column is empty.", task.Index))

		return
	}

	destName := DestName(task.RawName, task.URL)
	destPath := filepath.Join(r.cfg.OutputDir, destName)

	// Resume-skip: a pre-existing file counts as a completed prior
	// download. Existence only, no content check.
	if _, err := r.fs.Stat(destPath); err == nil {
		r.emit(entity.EventInfo, fmt.Sprintf("Skipping: %s (already exists)", destName))
		r.addSucceeded()

		return
	}

	if err := r.fetcher.Fetch(ctx, task.URL, destPath); err != nil {
		r.emit(entity.EventError, fmt.Sprintf("Failed: %s | Error: %s", task.URL, err))
		r.addFailed()

		return
	}

	r.emit(entity.EventSuccess, fmt.Sprintf("Downloaded: %s", destName))
	r.addSucceeded()
}

// finish publishes the summary, transitions back to Idle and records the
// run. The transition is delivered through the dispatcher, so observers
// never see the state change before the counters settled.
func (r *Runner) finish(summary *entity.RunSummary) {
	summary.FinishedAt = time.Now()

	r.mu.Lock()
	summary.Counters = r.counters
	r.state = entity.RunStateIdle
	r.runID = ""
	r.last = summary
	r.mu.Unlock()

	r.notify(entity.RunStateIdle)

	r.log.Info("Run finished",
		slog.String("run_id", summary.ID),
		slog.Int("succeeded", summary.Counters.Succeeded),
		slog.Int("failed", summary.Counters.Failed))

	if r.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		if err := r.history.SaveRun(ctx, summary); err != nil {
			r.log.Error("Cannot save run history", slog.String("run_id", summary.ID), slog.Any("error", err))
		}
	}
}

func (r *Runner) addSucceeded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Succeeded++
}

func (r *Runner) addFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Failed++
}

func (r *Runner) countersSnapshot() entity.RunCounters {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.counters
}

func (r *Runner) emit(level entity.EventLevel, msg string) {
	if r.sink == nil {
		return
	}

	r.sink.Emit(entity.LogEvent{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})
}

func (r *Runner) notify(state entity.RunState) {
	r.notifyCh <- state
}

func (r *Runner) stateBroadcaster(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-r.notifyCh:
			r.lmu.RLock()
			listeners := make([]StateListener, len(r.listeners))
			copy(listeners, r.listeners)
			r.lmu.RUnlock()

			for _, listener := range listeners {
				listener(state)
			}
		}
	}
}

package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aymanshehab/imgfetch/internal/common"
	"github.com/aymanshehab/imgfetch/internal/config"
	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/aymanshehab/imgfetch/internal/fetcher"
	"github.com/aymanshehab/imgfetch/internal/pause"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	dataset *entity.Dataset
	err     error
}

func (r *stubReader) ReadDataset(path string) (*entity.Dataset, error) {
	if r.err != nil {
		return nil, r.err
	}

	return r.dataset, nil
}

type stubFetcher struct {
	mu      sync.Mutex
	fs      afero.Fs
	errs    map[string]error
	calls   []string
	started chan string
	proceed chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, url, destPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- url
	}
	if f.proceed != nil {
		<-f.proceed
	}

	if err, exists := f.errs[url]; exists {
		return err
	}

	return afero.WriteFile(f.fs, destPath, []byte("image-bytes"), 0644)
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type memorySink struct {
	mu     sync.Mutex
	events []entity.LogEvent
}

func (s *memorySink) Emit(event entity.LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

func (s *memorySink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]string, 0, len(s.events))
	for _, e := range s.events {
		msgs = append(msgs, e.Message)
	}

	return msgs
}

type memoryHistory struct {
	mu        sync.Mutex
	summaries []*entity.RunSummary
}

func (h *memoryHistory) SaveRun(ctx context.Context, summary *entity.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.summaries = append(h.summaries, summary)

	return nil
}

type testEnv struct {
	runner  *Runner
	fs      afero.Fs
	gate    *pause.Gate
	fetcher *stubFetcher
	sink    *memorySink
	history *memoryHistory
	states  chan entity.RunState
}

func newTestEnv(t *testing.T, dataset *entity.Dataset, fetchErrs map[string]error) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	gate := pause.NewGate()
	sink := &memorySink{}
	history := &memoryHistory{}
	sf := &stubFetcher{fs: fs, errs: fetchErrs}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	cfg := &config.RunConfig{
		DatasetPath: "/data.csv",
		OutputDir:   "/out",
		URLColumn:   "URL",
		NameColumn:  "Filename",
	}

	r := NewRunner(cfg, fs, gate, &stubReader{dataset: dataset}, sf, sink, history, log)
	t.Cleanup(r.Close)

	env := &testEnv{
		runner:  r,
		fs:      fs,
		gate:    gate,
		fetcher: sf,
		sink:    sink,
		history: history,
		states:  make(chan entity.RunState, 32),
	}
	r.AddStateListener(func(state entity.RunState) {
		env.states <- state
	})

	return env
}

func (e *testEnv) waitIdle(t *testing.T) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-e.states:
			if state == entity.RunStateIdle {
				return
			}
		case <-deadline:
			t.Fatal("run did not complete")
		}
	}
}

func testDataset(rows ...entity.Row) *entity.Dataset {
	return &entity.Dataset{
		SourcePath: "/data.csv",
		Columns:    []string{"URL", "Filename"},
		Rows:       rows,
	}
}

func TestRunEndToEnd(t *testing.T) {
	dataset := testDataset(
		entity.Row{"Filename": "Cat 1!", "URL": "http://ex/a.jpg"},
		entity.Row{"Filename": "Dog", "URL": ""},
		entity.Row{"Filename": "Bird", "URL": "http://ex/missing"},
	)
	env := newTestEnv(t, dataset, map[string]error{
		"http://ex/missing": &fetcher.StatusError{Code: http.StatusNotFound},
	})

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)
	env.waitIdle(t)

	exists, err := afero.Exists(env.fs, "/out/Cat_1_.jpg")
	require.NoError(t, err)
	require.True(t, exists)

	// The empty-URL row writes nothing and moves no counter.
	dogExists, err := afero.Exists(env.fs, "/out/Dog.jpg")
	require.NoError(t, err)
	require.False(t, dogExists)

	snap := env.runner.Snapshot()
	require.Equal(t, entity.RunStateIdle.String(), snap.State)
	require.Equal(t, 1, snap.Counters.Succeeded)
	require.Equal(t, 1, snap.Counters.Failed)

	var skipLines int
	for _, msg := range env.sink.messages() {
		if strings.Contains(msg, "URL column is empty") {
			skipLines++
		}
	}
	require.Equal(t, 1, skipLines)

	require.Len(t, env.history.summaries, 1)
	require.Equal(t, snap.Counters, env.history.summaries[0].Counters)
}

func TestRunResumeSkipIdempotence(t *testing.T) {
	dataset := testDataset(
		entity.Row{"Filename": "One", "URL": "http://ex/1.jpg"},
		entity.Row{"Filename": "Two", "URL": "http://ex/2.jpg"},
	)
	env := newTestEnv(t, dataset, nil)

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)
	env.waitIdle(t)

	first := env.runner.Snapshot()
	require.Equal(t, 2, first.Counters.Succeeded)
	require.Equal(t, 0, first.Counters.Failed)
	require.Equal(t, 2, env.fetcher.callCount())

	// Second run over the same output: every row is a skip, no fetches.
	_, err = env.runner.StartRun(context.Background())
	require.NoError(t, err)
	env.waitIdle(t)

	second := env.runner.Snapshot()
	require.Equal(t, 2, second.Counters.Succeeded)
	require.Equal(t, 0, second.Counters.Failed)
	require.Equal(t, 2, env.fetcher.callCount())

	var skips int
	for _, msg := range env.sink.messages() {
		if strings.Contains(msg, "already exists") {
			skips++
		}
	}
	require.Equal(t, 2, skips)
}

func TestRunStateSequence(t *testing.T) {
	dataset := testDataset(entity.Row{"Filename": "One", "URL": "http://ex/1.jpg"})
	env := newTestEnv(t, dataset, nil)
	env.fetcher.started = make(chan string, 1)
	env.fetcher.proceed = make(chan struct{})

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)

	<-env.fetcher.started
	env.runner.Pause()
	env.runner.Resume()
	close(env.fetcher.proceed)

	var visited []entity.RunState
	deadline := time.After(5 * time.Second)
	for len(visited) < 4 {
		select {
		case state := <-env.states:
			visited = append(visited, state)
		case <-deadline:
			t.Fatalf("incomplete transition sequence: %v", visited)
		}
	}

	require.Equal(t, []entity.RunState{
		entity.RunStateRunning,
		entity.RunStatePaused,
		entity.RunStateRunning,
		entity.RunStateIdle,
	}, visited)
}

func TestPauseWhileIdleIsNoOp(t *testing.T) {
	env := newTestEnv(t, testDataset(), nil)

	env.runner.Pause()
	env.runner.Resume()

	require.Equal(t, entity.RunStateIdle, env.runner.State())
	select {
	case state := <-env.states:
		t.Fatalf("unexpected transition to %s", state)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPauseBlocksNextRow(t *testing.T) {
	dataset := testDataset(
		entity.Row{"Filename": "One", "URL": "http://ex/1.jpg"},
		entity.Row{"Filename": "Two", "URL": "http://ex/2.jpg"},
	)
	env := newTestEnv(t, dataset, nil)
	env.fetcher.started = make(chan string, 2)
	env.fetcher.proceed = make(chan struct{}, 2)

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)

	<-env.fetcher.started
	env.runner.Pause()
	env.fetcher.proceed <- struct{}{} // let the in-flight row finish

	// While paused, the next row must not begin.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, env.fetcher.callCount())

	env.runner.Resume()
	<-env.fetcher.started
	env.fetcher.proceed <- struct{}{}
	env.waitIdle(t)

	require.Equal(t, 2, env.fetcher.callCount())
	require.Equal(t, 2, env.runner.Snapshot().Counters.Succeeded)
}

func TestStartRunWhileActive(t *testing.T) {
	dataset := testDataset(entity.Row{"Filename": "One", "URL": "http://ex/1.jpg"})
	env := newTestEnv(t, dataset, nil)
	env.fetcher.started = make(chan string, 1)
	env.fetcher.proceed = make(chan struct{})

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)
	<-env.fetcher.started

	_, err = env.runner.StartRun(context.Background())
	require.ErrorIs(t, err, common.ErrRunAlreadyActive)

	close(env.fetcher.proceed)
	env.waitIdle(t)
}

func TestRunSetupFailureMissingColumn(t *testing.T) {
	dataset := &entity.Dataset{
		SourcePath: "/data.csv",
		Columns:    []string{"Link", "Title"},
		Rows:       []entity.Row{{"Link": "http://ex/a.jpg", "Title": "Cat"}},
	}
	env := newTestEnv(t, dataset, nil)

	_, err := env.runner.StartRun(context.Background())
	require.NoError(t, err)
	env.waitIdle(t)

	snap := env.runner.Snapshot()
	require.Equal(t, entity.RunStateIdle.String(), snap.State)
	require.Equal(t, 0, snap.Counters.Succeeded)
	require.Equal(t, 0, snap.Counters.Failed)
	require.NotEmpty(t, snap.LastRun.SetupError)
	require.Zero(t, env.fetcher.callCount())

	var columnsListed bool
	for _, msg := range env.sink.messages() {
		if strings.Contains(msg, "Available columns") && strings.Contains(msg, "Link") {
			columnsListed = true
		}
	}
	require.True(t, columnsListed)
}

func TestRunSetupFailureDatasetError(t *testing.T) {
	fs := afero.NewMemMapFs()
	gate := pause.NewGate()
	sink := &memorySink{}
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	cfg := &config.RunConfig{
		DatasetPath: "/data.bin",
		OutputDir:   "/out",
		URLColumn:   "URL",
		NameColumn:  "Filename",
	}

	r := NewRunner(cfg, fs, gate, &stubReader{err: common.ErrUnsupportedDataset}, &stubFetcher{fs: fs}, sink, nil, log)
	t.Cleanup(r.Close)

	states := make(chan entity.RunState, 8)
	r.AddStateListener(func(state entity.RunState) { states <- state })

	_, err := r.StartRun(context.Background())
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-states:
			if state == entity.RunStateIdle {
				require.NotEmpty(t, r.Snapshot().LastRun.SetupError)

				return
			}
		case <-deadline:
			t.Fatal("run did not return to idle")
		}
	}
}

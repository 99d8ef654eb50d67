package entity

import "time"

// RunState is the controller-owned batch state. Transitions are the only
// legal way to change it; observers read but never set it.
type RunState int

const (
	RunStateIdle RunState = iota
	RunStateRunning
	RunStatePaused
)

func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	case RunStatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RunCounters are owned exclusively by the controller during a run and
// reset to zero when a new run starts.
type RunCounters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunStatus is a torn-read-safe view of the controller state for
// observers.
type RunStatus struct {
	State    string      `json:"state"`
	RunID    string      `json:"run_id,omitempty"`
	Counters RunCounters `json:"counters"`
	LastRun  *RunSummary `json:"last_run,omitempty"`
}

// RunSummary describes one finished run.
type RunSummary struct {
	ID          string      `json:"id"`
	DatasetPath string      `json:"dataset_path"`
	OutputDir   string      `json:"output_dir"`
	Counters    RunCounters `json:"counters"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	SetupError  string      `json:"setup_error,omitempty"`
}

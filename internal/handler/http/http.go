package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aymanshehab/imgfetch/internal/common"
	"github.com/aymanshehab/imgfetch/internal/entity"
)

const defaultLogTail = 100

type RunService interface {
	StartRun(ctx context.Context) (string, error)
	Pause()
	Resume()
	Snapshot() entity.RunStatus
}

type LogStorage interface {
	Tail(n int) []entity.LogEvent
}

type HistoryService interface {
	ListRuns(ctx context.Context, n int) ([]*entity.RunSummary, error)
	Totals(ctx context.Context) (map[string]int64, error)
}

type logLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func NewRunHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RunHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := srv.StartRun(context.Background())
		if err != nil {
			switch {
			case errors.Is(err, common.ErrRunAlreadyActive):
				http.Error(w, "A run is already active", http.StatusConflict)
			default:
				http.Error(w, "Cannot start run", http.StatusInternalServerError)
			}

			return
		}

		log.Info("Run started", slog.String("run_id", runID))

		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

func NewPauseHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PauseHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		// Pausing outside Running is a silent no-op, not an error.
		srv.Pause()

		log.Info("Pause requested")

		writeJSON(w, http.StatusOK, map[string]string{"state": srv.Snapshot().State})
	}
}

func NewResumeHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ResumeHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		srv.Resume()

		log.Info("Resume requested")

		writeJSON(w, http.StatusOK, map[string]string{"state": srv.Snapshot().State})
	}
}

func NewStatusHandler(srv RunService, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, srv.Snapshot())
	}
}

func NewLogsHandler(store LogStorage, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := defaultLogTail
		if arg := r.URL.Query().Get("n"); arg != "" {
			val, err := strconv.Atoi(arg)
			if err != nil || val < 1 {
				http.Error(w, "Bad request", http.StatusBadRequest)

				return
			}
			n = val
		}

		events := store.Tail(n)
		lines := make([]logLine, 0, len(events))
		for _, e := range events {
			lines = append(lines, logLine{
				Time:    e.Time.Format("2006-01-02 15:04:05"),
				Level:   e.Level.String(),
				Message: e.Message,
			})
		}

		writeJSON(w, http.StatusOK, lines)
	}
}

func NewHistoryHandler(srv HistoryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "HistoryHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if arg := r.URL.Query().Get("n"); arg != "" {
			val, err := strconv.Atoi(arg)
			if err != nil || val < 1 {
				http.Error(w, "Bad request", http.StatusBadRequest)

				return
			}
			n = val
		}

		runs, err := srv.ListRuns(context.Background(), n)
		if err != nil {
			log.Error("Cannot list runs", slog.Any("error", err))
			http.Error(w, "Cannot list runs", http.StatusInternalServerError)

			return
		}

		totals, err := srv.Totals(context.Background())
		if err != nil {
			log.Error("Cannot get totals", slog.Any("error", err))
			http.Error(w, "Cannot get totals", http.StatusInternalServerError)

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"runs":   runs,
			"totals": totals,
		})
	}
}

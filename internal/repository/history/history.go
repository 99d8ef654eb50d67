// Package history persists finished run summaries in redis so operators
// can review past batches across process restarts.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/aymanshehab/imgfetch/internal/util"
	"github.com/redis/go-redis/v9"
)

const (
	KeyRunHash     = "rh" // HASH. rh:{run_id} -> summary fields
	KeyRunList     = "rl" // LIST. run ids, newest first
	KeyTotals      = "rt" // HASH. lifetime counters: runs, succeeded, failed
	KeyDatasetRuns = "dr" // HASH. sha1(dataset path) -> run count

	KeySeparator = ":"

	fieldDataset    = "dataset"
	fieldOutput     = "output"
	fieldSucceeded  = "succeeded"
	fieldFailed     = "failed"
	fieldStarted    = "started"
	fieldFinished   = "finished"
	fieldSetupError = "setup_error"

	maxRuns = 100
)

type historyRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewHistoryRepository(cl *redis.Client, log *slog.Logger) *historyRepository {
	return &historyRepository{
		cl:  cl,
		log: log.With(slog.String("item", "HistoryRepository")),
	}
}

func (r *historyRepository) SaveRun(ctx context.Context, summary *entity.RunSummary) error {
	pipe := r.cl.Pipeline()

	pipe.HSet(ctx, getKey(KeyRunHash, summary.ID),
		fieldDataset, summary.DatasetPath,
		fieldOutput, summary.OutputDir,
		fieldSucceeded, summary.Counters.Succeeded,
		fieldFailed, summary.Counters.Failed,
		fieldStarted, summary.StartedAt.Format(time.RFC3339Nano),
		fieldFinished, summary.FinishedAt.Format(time.RFC3339Nano),
		fieldSetupError, summary.SetupError,
	)
	pipe.LPush(ctx, KeyRunList, summary.ID)
	pipe.LTrim(ctx, KeyRunList, 0, maxRuns-1)

	pipe.HIncrBy(ctx, KeyTotals, "runs", 1)
	pipe.HIncrBy(ctx, KeyTotals, fieldSucceeded, int64(summary.Counters.Succeeded))
	pipe.HIncrBy(ctx, KeyTotals, fieldFailed, int64(summary.Counters.Failed))

	pipe.HIncrBy(ctx, KeyDatasetRuns, util.GetIDFromString(&summary.DatasetPath), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot save run %s: %w", summary.ID, err)
	}

	return nil
}

func (r *historyRepository) ListRuns(ctx context.Context, n int) ([]*entity.RunSummary, error) {
	if n < 1 || n > maxRuns {
		n = maxRuns
	}

	ids, err := r.cl.LRange(ctx, KeyRunList, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get run list: %w", err)
	}

	summaries := make([]*entity.RunSummary, 0, len(ids))
	for _, id := range ids {
		fields, err := r.cl.HGetAll(ctx, getKey(KeyRunHash, id)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, fmt.Errorf("cannot get run %s: %w", id, err)
		}

		if len(fields) < 1 {
			continue
		}

		summaries = append(summaries, r.toSummary(id, fields))
	}

	return summaries, nil
}

func (r *historyRepository) Totals(ctx context.Context) (map[string]int64, error) {
	fields, err := r.cl.HGetAll(ctx, KeyTotals).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get totals: %w", err)
	}

	totals := make(map[string]int64, len(fields))
	for field, val := range fields {
		count, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			r.log.Error("Cannot convert counter to int", slog.String("field", field), slog.Any("error", err))

			continue
		}

		totals[field] = count
	}

	return totals, nil
}

func (r *historyRepository) toSummary(id string, fields map[string]string) *entity.RunSummary {
	summary := &entity.RunSummary{
		ID:          id,
		DatasetPath: fields[fieldDataset],
		OutputDir:   fields[fieldOutput],
		SetupError:  fields[fieldSetupError],
	}

	summary.Counters.Succeeded = r.atoi(id, fields[fieldSucceeded])
	summary.Counters.Failed = r.atoi(id, fields[fieldFailed])

	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldStarted]); err == nil {
		summary.StartedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldFinished]); err == nil {
		summary.FinishedAt = ts
	}

	return summary
}

func (r *historyRepository) atoi(id, val string) int {
	if val == "" {
		return 0
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		r.log.Error("Cannot convert counter to int", slog.String("run_id", id), slog.Any("error", err))

		return 0
	}

	return count
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}

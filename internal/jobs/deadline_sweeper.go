package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"teamup/internal/logging"
	"teamup/internal/models"
	"teamup/internal/services"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// DeadlineSweeperName is the scheduler name of the deadline sweep
const DeadlineSweeperName = "deadline-sweeper"

// DeadlineSweeper closes open projects whose deadline day is behind today.
// It holds no state between runs; every run re-reads the projects, so it is
// safe to invoke repeatedly and from several callers at once.
type DeadlineSweeper struct {
	projects *services.ProjectStore
	workers  int
	location *time.Location
	metrics  *services.Metrics
	now      func() time.Time
}

// NewDeadlineSweeper creates a sweeper that issues at most workers
// concurrent status updates.
func NewDeadlineSweeper(projects *services.ProjectStore, workers int, location *time.Location, metrics *services.Metrics) *DeadlineSweeper {
	if workers < 1 {
		workers = 1
	}
	if location == nil {
		location = time.Local
	}
	return &DeadlineSweeper{
		projects: projects,
		workers:  workers,
		location: location,
		metrics:  metrics,
		now:      time.Now,
	}
}

// WithClock sets the time source used to decide what "today" is
func (j *DeadlineSweeper) WithClock(now func() time.Time) *DeadlineSweeper {
	if now != nil {
		j.now = now
	}
	return j
}

// Name implements Job
func (j *DeadlineSweeper) Name() string {
	return DeadlineSweeperName
}

// Run implements Job
func (j *DeadlineSweeper) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep closes every expired open project. Malformed or missing deadlines
// are skipped. Individual update failures are counted and reported together
// after every candidate has been tried.
func (j *DeadlineSweeper) Sweep(ctx context.Context) (*models.SweepResult, error) {
	logger := logging.WithJob(DeadlineSweeperName, uuid.New().String())
	started := time.Now()
	now := j.now()

	projects, err := j.projects.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	result := &models.SweepResult{Checked: len(projects)}
	var expired []string
	for _, p := range projects {
		passed, ok := services.DeadlinePassed(p.LastDate, now, j.location)
		if !ok {
			logger.Warn("skipping project with unparsable deadline", "project_id", p.ID, "last_date", p.LastDate)
			result.Skipped++
			continue
		}
		if passed && p.Status != models.ProjectStatusClosed {
			expired = append(expired, p.ID)
		}
	}

	var (
		updated, skipped, failed atomic.Int64
		errMu                    sync.Mutex
		errs                     []error
	)
	closeOne := func(projectID string) {
		err := j.projects.SetStatus(ctx, projectID, models.ProjectStatusClosed)
		switch {
		case err == nil:
			updated.Add(1)
		case errors.Is(err, services.ErrNotFound):
			// Deleted after it was listed
			skipped.Add(1)
		default:
			failed.Add(1)
			logger.Error("failed to close expired project", "project_id", projectID, "error", err)
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	}

	if len(expired) > 0 {
		pool, err := ants.NewPool(j.workers, ants.WithPanicHandler(func(v any) {
			logger.Error("sweep worker panic", "panic", v)
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to create sweep pool: %w", err)
		}

		var wg sync.WaitGroup
		for _, id := range expired {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			id := id
			if err := pool.Submit(func() {
				defer wg.Done()
				closeOne(id)
			}); err != nil {
				wg.Done()
				closeOne(id)
			}
		}
		wg.Wait()
		if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warn("sweep pool release timed out", "error", err)
		}
	}

	result.UpdatedCount = int(updated.Load())
	result.Skipped += int(skipped.Load())
	result.Failed = int(failed.Load())

	elapsed := time.Since(started)
	j.metrics.RecordSweep(result.UpdatedCount, elapsed.Seconds())
	log.Printf("⏰ [SWEEPER] Checked %d projects, closed %d, skipped %d, failed %d in %v",
		result.Checked, result.UpdatedCount, result.Skipped, result.Failed, elapsed)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if len(errs) > 0 {
		return result, fmt.Errorf("failed to close %d expired projects: %w", len(errs), errors.Join(errs...))
	}
	return result, nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"teamup/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ErrJobRunning is returned by RunNow when another run holds the job lock
var ErrJobRunning = errors.New("job already running")

// ErrUnknownJob is returned by RunNow for unregistered names
var ErrUnknownJob = errors.New("unknown job")

const defaultLockTTL = 10 * time.Minute

// Scheduler runs registered jobs on gocron schedules. Every run, scheduled
// or manual, first takes a lock keyed by job name so that only one instance
// across the deployment runs a job at a time.
type Scheduler struct {
	scheduler  gocron.Scheduler
	locker     services.Locker
	instanceID string
	lockTTL    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]Job
	handles map[string]gocron.Job
	running bool
	stopped bool
}

// NewScheduler creates a scheduler evaluating cron expressions in loc
func NewScheduler(locker services.Locker, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if locker == nil {
		locker = services.NewLocalLocker()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler:  scheduler,
		locker:     locker,
		instanceID: uuid.New().String(),
		lockTTL:    defaultLockTTL,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]Job),
		handles:    make(map[string]gocron.Job),
	}, nil
}

// Register adds a job. A nil definition registers it for manual runs only.
func (s *Scheduler) Register(job Job, definition gocron.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = job

	if definition != nil {
		handle, err := s.scheduler.NewJob(
			definition,
			gocron.NewTask(func() {
				if err := s.run(s.ctx, job); err != nil && !errors.Is(err, ErrJobRunning) {
					log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			delete(s.jobs, name)
			return fmt.Errorf("failed to schedule job %s: %w", name, err)
		}
		s.handles[name] = handle
	}

	log.Printf("✅ [SCHEDULER] Registered job: %s", name)
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started with %d jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return. Calling it again
// is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// RunNow runs a registered job immediately under its lock
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	return s.RunWith(ctx, name, nil)
}

// RunWith runs fn under the lock of the registered job name, so it never
// overlaps a scheduled run of that job. A nil fn runs the job itself.
func (s *Scheduler) RunWith(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if fn == nil {
		fn = job.Run
	}
	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return s.locked(ctx, name, fn)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	return s.locked(ctx, job.Name(), job.Run)
}

func (s *Scheduler) locked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lockKey := "teamup:job-lock:" + name

	acquired, err := s.locker.AcquireLock(ctx, lockKey, s.instanceID, s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for job %s: %w", name, err)
	}
	if !acquired {
		log.Printf("⏭️  [SCHEDULER] Job '%s' already running on another instance", name)
		return ErrJobRunning
	}
	defer func() {
		// Release even when ctx was cancelled mid-run
		if _, err := s.locker.ReleaseLock(context.Background(), lockKey, s.instanceID); err != nil {
			log.Printf("⚠️  [SCHEDULER] Failed to release lock for job '%s': %v", name, err)
		}
	}()

	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	start := time.Now()
	if err := fn(ctx); err != nil {
		return err
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(start))
	return nil
}

// Status returns the status of all jobs
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus, len(s.jobs))
	for name := range s.jobs {
		st := JobStatus{Name: name}
		if handle, ok := s.handles[name]; ok {
			st.Scheduled = true
			if next, err := handle.NextRun(); err == nil {
				st.NextRunTime = next
			}
			if last, err := handle.LastRun(); err == nil {
				st.LastRunTime = last
			}
		}
		status[name] = st
	}
	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	Scheduled   bool      `json:"scheduled"`
	NextRunTime time.Time `json:"next_run_time,omitempty"`
	LastRunTime time.Time `json:"last_run_time,omitempty"`
}

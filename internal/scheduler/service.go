package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/errorreporting"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is a recurring maintenance task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
	// Timeout bounds a single run. Zero means no limit beyond the service context.
	Timeout time.Duration
}

// JobStatus reports the bookkeeping of a registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"nextRun"`
	LastRun   time.Time `json:"lastRun,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Runs      int       `json:"runs"`
}

type registeredJob struct {
	Job
	schedule Schedule
	next     time.Time
	lastRun  time.Time
	lastErr  error
	runs     int
	running  bool
}

// Service runs registered jobs when they fall due. It checks on a fixed tick.
type Service struct {
	mu   sync.Mutex
	jobs map[string]*registeredJob
	tick time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewService creates a scheduler checking for due jobs every tick
// (one minute when zero).
func NewService(tick time.Duration) *Service {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Service{
		jobs: make(map[string]*registeredJob),
		tick: tick,
		now:  time.Now,
		stop: make(chan struct{}),
	}
}

// Register adds job. Its first run is one schedule period from now.
func (s *Service) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run function")
	}
	sched, err := ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("register job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("register job %q: already registered", job.Name)
	}
	s.jobs[job.Name] = &registeredJob{Job: job, schedule: sched, next: sched.Next(s.now())}
	return nil
}

// Start begins the scheduler loop. It blocks until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) {
	logger.InfoContext(ctx, "Starting scheduler service", "jobs", len(s.Status()), "tick", s.tick)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Scheduler stopped by context")
			return
		case <-s.stop:
			logger.InfoContext(ctx, "Scheduler stopped by signal")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// RunDue runs every job whose next run time has passed and returns how many ran.
func (s *Service) RunDue(ctx context.Context) int {
	now := s.now()
	var due []*registeredJob
	s.mu.Lock()
	for _, j := range s.jobs {
		if !j.running && !now.Before(j.next) {
			j.running = true
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(a, b int) bool { return due[a].Name < due[b].Name })
	for _, j := range due {
		s.execute(ctx, j)
	}
	return len(due)
}

// RunNow runs the named job immediately without moving its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok && j.running {
		s.mu.Unlock()
		return fmt.Errorf("job %q is already running", name)
	}
	if ok {
		j.running = true
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	next := j.next
	err := s.execute(ctx, j)
	s.mu.Lock()
	j.next = next
	s.mu.Unlock()
	return err
}

// Status lists registered jobs sorted by name.
func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{Name: j.Name, Schedule: j.Schedule, NextRun: j.next, LastRun: j.lastRun, Runs: j.runs}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Service) execute(ctx context.Context, j *registeredJob) error {
	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := s.now()
	err := safeRun(runCtx, j.Run)
	elapsed := time.Since(start)
	metrics.MaintenanceJobDuration.WithLabelValues(j.Name).Observe(elapsed.Seconds())

	s.mu.Lock()
	j.running = false
	j.lastRun = start
	j.lastErr = err
	j.runs++
	j.next = j.schedule.Next(s.now())
	next := j.next
	s.mu.Unlock()

	if err != nil {
		metrics.MaintenanceJobRuns.WithLabelValues(j.Name, "failed").Inc()
		logger.ErrorContext(ctx, "Maintenance job failed", "job", j.Name, "error", err)
		errorreporting.CaptureErrorWithContext(err, map[string]string{"job": j.Name}, nil)
		return err
	}
	metrics.MaintenanceJobRuns.WithLabelValues(j.Name, "success").Inc()
	logger.DebugContext(ctx, "Maintenance job finished", "job", j.Name, "duration", elapsed, "next_run", next.Format(time.RFC3339))
	return nil
}

// safeRun turns a panicking job into an error so one bad job cannot stop the loop.
func safeRun(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx)
}

// Package jobs tracks asynchronous deck builds in memory.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/deck"
	"slides-server/internal/models"
)

var (
	buildJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slides_build_jobs_total",
			Help: "Total number of deck build jobs by terminal status.",
		},
		[]string{"status"},
	)
	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slides_build_duration_seconds",
			Help:    "Histogram of deck build durations.",
			Buckets: prometheus.DefBuckets,
		},
	)
	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slides_active_jobs",
			Help: "Number of jobs currently pending or running.",
		},
	)
)

// Notifier pushes job events to progress subscribers.
type Notifier interface {
	NotifyProgress(sessionID string, jobID uuid.UUID, progress int)
	NotifyCompleted(sessionID string, jobID uuid.UUID, fileURL string)
	NotifyError(sessionID string, jobID uuid.UUID, message string)
}

// Manager owns every generation job. Each build runs in its own goroutine
// with an independent context, so an HTTP disconnect never aborts a build.
type Manager struct {
	jobs     map[uuid.UUID]*models.GenerationJob
	cancels  map[uuid.UUID]context.CancelFunc
	mu       sync.RWMutex
	maxJobs  int
	builder  *deck.Builder
	notifier Notifier
	cfg      *config.Config
	closing  chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewManager wires the job registry.
func NewManager(cfg *config.Config, builder *deck.Builder, logger *zap.Logger) *Manager {
	maxJobs := cfg.MaxActiveJobs
	if maxJobs <= 0 {
		maxJobs = 10
	}
	return &Manager{
		jobs:    make(map[uuid.UUID]*models.GenerationJob),
		cancels: make(map[uuid.UUID]context.CancelFunc),
		maxJobs: maxJobs,
		builder: builder,
		cfg:     cfg,
		closing: make(chan struct{}),
		logger:  logger,
	}
}

// SetNotifier installs the progress channel sink.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// StartBuild registers a pending job and launches the build goroutine.
// The returned ID is immediately pollable.
func (m *Manager) StartBuild(slides []models.SlidePlan, sessionID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.closing:
		return uuid.UUID{}, errors.New("job manager is shutting down")
	default:
	}

	active := 0
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			active++
		}
	}
	if active >= m.maxJobs {
		return uuid.UUID{}, models.ErrJobLimitReached
	}

	jobID := uuid.New()
	now := time.Now()
	job := &models.GenerationJob{
		ID:        jobID,
		SessionID: sessionID,
		Status:    models.JobStatusPending,
		Total:     len(slides),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[jobID] = job

	// The build owns an independent context so it survives the request.
	buildCtx, cancel := context.WithCancel(context.Background())
	m.cancels[jobID] = cancel
	activeJobs.Inc()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runJob(buildCtx, jobID, slides)
	}()

	return jobID, nil
}

// GetJob returns a copy of the job record.
func (m *Manager) GetJob(jobID uuid.UUID) (models.GenerationJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return models.GenerationJob{}, models.ErrJobNotFound
	}
	return *job, nil
}

// ResultPath returns the on-disk result of a completed job.
func (m *Manager) ResultPath(jobID uuid.UUID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return "", models.ErrJobNotFound
	}
	if job.Status != models.JobStatusCompleted || job.ResultPath == "" {
		return "", models.ErrResultNotReady
	}
	return job.ResultPath, nil
}

func (m *Manager) runJob(ctx context.Context, jobID uuid.UUID, slides []models.SlidePlan) {
	startTime := time.Now()
	m.setRunning(jobID)

	outPath, err := m.builder.Build(ctx, slides, func(done, total int) {
		m.setProgress(jobID, done, total)
	})

	duration := time.Since(startTime)
	if err != nil {
		m.fail(jobID, err)
		buildJobsTotal.With(prometheus.Labels{"status": string(models.JobStatusFailed)}).Inc()
		m.logger.Error("build job failed",
			zap.String("job_id", jobID.String()),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	m.complete(jobID, outPath)
	buildJobsTotal.With(prometheus.Labels{"status": string(models.JobStatusCompleted)}).Inc()
	buildDuration.Observe(duration.Seconds())
	m.logger.Info("build job completed",
		zap.String("job_id", jobID.String()),
		zap.Duration("duration", duration),
		zap.String("path", outPath))
}

func (m *Manager) setRunning(jobID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Status = models.JobStatusRunning
	job.UpdatedAt = time.Now()
}

// setProgress records per-slide progress as a monotonic 0-100 percentage
// and pushes one progress event per advance.
func (m *Manager) setProgress(jobID uuid.UUID, done, total int) {
	m.mu.Lock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() || total <= 0 {
		m.mu.Unlock()
		return
	}
	percent := int(math.Round(float64(done) / float64(total) * 100))
	if percent > 100 {
		percent = 100
	}
	if percent <= job.Progress {
		m.mu.Unlock()
		return
	}
	job.Done = done
	job.Total = total
	job.Progress = percent
	job.UpdatedAt = time.Now()
	sessionID := job.SessionID
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.NotifyProgress(sessionID, jobID, percent)
	}
}

func (m *Manager) complete(jobID uuid.UUID, outPath string) {
	m.mu.Lock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Done = job.Total
	job.ResultPath = outPath
	job.ResultURL = m.downloadURL(jobID)
	job.UpdatedAt = time.Now()
	sessionID := job.SessionID
	resultURL := job.ResultURL
	m.mu.Unlock()

	activeJobs.Dec()
	if m.notifier != nil {
		m.notifier.NotifyCompleted(sessionID, jobID, resultURL)
	}
}

// fail marks the job failed and emits exactly one error event.
func (m *Manager) fail(jobID uuid.UUID, cause error) {
	m.mu.Lock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = cause.Error()
	job.UpdatedAt = time.Now()
	sessionID := job.SessionID
	message := job.ErrorMessage
	m.mu.Unlock()

	activeJobs.Dec()
	if m.notifier != nil {
		m.notifier.NotifyError(sessionID, jobID, message)
	}
}

func (m *Manager) downloadURL(jobID uuid.UUID) string {
	return fmt.Sprintf("%s/slides/download?jobId=%s",
		strings.TrimSuffix(m.cfg.PublicBaseURL, "/"), jobID.String())
}

// CleanupJobs drops terminal jobs older than age and removes their output
// files.
func (m *Manager) CleanupJobs(age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, job := range m.jobs {
		if !job.Status.Terminal() || now.Sub(job.UpdatedAt) <= age {
			continue
		}
		if job.ResultPath != "" {
			if err := os.Remove(job.ResultPath); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("failed to remove job result",
					zap.String("job_id", id.String()),
					zap.String("path", job.ResultPath),
					zap.Error(err))
			}
		}
		delete(m.jobs, id)
		delete(m.cancels, id)
	}
}

// StartCleanup runs CleanupJobs on a ticker until shutdown.
func (m *Manager) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.closing:
				return
			case <-ticker.C:
				m.CleanupJobs(m.cfg.JobRetention)
			}
		}
	}()
}

// Shutdown cancels running builds and waits for their goroutines.
func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.closing)

	m.mu.Lock()
	for id, cancel := range m.cancels {
		if job, ok := m.jobs[id]; ok && !job.Status.Terminal() {
			cancel()
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for jobs to finish")
	}
}

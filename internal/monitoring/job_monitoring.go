package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

type JobExecutionStatus string

const (
	JobStatusPending JobExecutionStatus = "pending"
	JobStatusRunning JobExecutionStatus = "running"
	JobStatusSuccess JobExecutionStatus = "success"
	JobStatusFailed  JobExecutionStatus = "failed"
	JobStatusStalled JobExecutionStatus = "stalled"
)

const (
	defaultStalledThreshold = 5 * time.Minute
	// stallGrace is added to a job's own timeout before a run counts as stalled.
	stallGrace = time.Minute
)

// JobStatus is the tracked state of one scheduled sweep.
type JobStatus struct {
	JobName             string                 `json:"job_name"`
	Status              JobExecutionStatus     `json:"status"`
	LastRunTime         time.Time              `json:"last_run_time"`
	LastDuration        time.Duration          `json:"last_duration_ms"`
	SuccessCount        int64                  `json:"success_count"`
	FailureCount        int64                  `json:"failure_count"`
	ConsecutiveFailures int64                  `json:"consecutive_failures"`
	LastError           string                 `json:"last_error,omitempty"`
	AverageExecution    time.Duration          `json:"average_execution_ms"`
	MaxExecutionTime    time.Duration          `json:"max_execution_ms"`
	MinExecutionTime    time.Duration          `json:"min_execution_ms"`
	StallAfter          time.Duration          `json:"stall_after_ms,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func newJobStatus(jobName string, status JobExecutionStatus, now time.Time) *JobStatus {
	return &JobStatus{
		JobName:   jobName,
		Status:    status,
		Metadata:  make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// recordRun folds one run's duration into the execution statistics.
func (s *JobStatus) recordRun(duration time.Duration) {
	runs := s.SuccessCount + s.FailureCount
	if runs == 0 || duration < s.MinExecutionTime {
		s.MinExecutionTime = duration
	}
	if duration > s.MaxExecutionTime {
		s.MaxExecutionTime = duration
	}
	s.AverageExecution = (s.AverageExecution*time.Duration(runs) + duration) / time.Duration(runs+1)
	s.LastDuration = duration
}

func (s *JobStatus) copy() JobStatus {
	c := *s
	c.Metadata = make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

type JobsSummary struct {
	TotalJobs      int       `json:"total_jobs"`
	RunningJobs    int       `json:"running_jobs"`
	HealthyJobs    int       `json:"healthy_jobs"`
	UnhealthyJobs  int       `json:"unhealthy_jobs"`
	StalledJobs    int       `json:"stalled_jobs"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// JobStatusManager tracks the scheduled sweeps for the jobs health check.
// Safe for concurrent use.
type JobStatusManager struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus
	logger   *logger.Logger
	metrics  *BackgroundJobMetrics
	// stalledThreshold applies to jobs registered without a timeout.
	stalledThreshold time.Duration
	cleanupInterval  time.Duration
	retentionPeriod  time.Duration
	stop             chan struct{}
	stopOnce         sync.Once
}

func NewJobStatusManager(logger *logger.Logger, metrics *BackgroundJobMetrics) *JobStatusManager {
	jsm := &JobStatusManager{
		statuses:         make(map[string]*JobStatus),
		logger:           logger,
		metrics:          metrics,
		stalledThreshold: defaultStalledThreshold,
		cleanupInterval:  time.Hour,
		retentionPeriod:  24 * time.Hour,
		stop:             make(chan struct{}),
	}

	go jsm.loop(time.Minute, jsm.detectStalledJobs)
	go jsm.loop(jsm.cleanupInterval, jsm.cleanupOldStatuses)

	return jsm
}

// Stop ends the stalled-job detector and the cleanup loop.
func (jsm *JobStatusManager) Stop() {
	jsm.stopOnce.Do(func() { close(jsm.stop) })
}

func (jsm *JobStatusManager) loop(every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-jsm.stop:
			return
		}
	}
}

// RegisterJob registers a job whose runs may legitimately last up to
// timeout; it is only reported stalled after timeout plus a grace. A zero
// timeout keeps the manager-wide threshold.
func (jsm *JobStatusManager) RegisterJob(jobName string, timeout time.Duration) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		status = newJobStatus(jobName, JobStatusPending, time.Now())
		jsm.statuses[jobName] = status
		jsm.logger.Info("[JobStatusManager][RegisterJob] job registered", map[string]string{
			"job_name": jobName,
		})
	}
	if timeout > 0 {
		status.StallAfter = timeout + stallGrace
	}
}

func (jsm *JobStatusManager) StartJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	status, exists := jsm.statuses[jobName]
	if !exists {
		status = newJobStatus(jobName, JobStatusRunning, now)
		jsm.statuses[jobName] = status
	}
	status.Status = JobStatusRunning
	status.LastRunTime = now
	status.UpdatedAt = now

	jsm.metrics.activeJobs.Inc()

	jsm.logger.Info("[JobStatusManager][StartJob] job started", map[string]string{
		"job_name": jobName,
	})
}

// CompleteJob closes the current run. A nil err resets the failure streak.
func (jsm *JobStatusManager) CompleteJob(jobName string, err error, metadata map[string]interface{}) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		jsm.logger.Error("[JobStatusManager][CompleteJob] job was never started", map[string]string{
			"job_name": jobName,
		})
		return
	}

	now := time.Now()
	duration := now.Sub(status.LastRunTime)
	status.recordRun(duration)
	status.UpdatedAt = now
	for key, value := range metadata {
		status.Metadata[key] = value
	}

	if err != nil {
		status.Status = JobStatusFailed
		status.FailureCount++
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		status.Metadata["error_type"] = classifyJobError(err)

		jsm.metrics.jobRuns.WithLabelValues(jobName, "error").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "failed").Observe(duration.Seconds())

		jsm.logger.Error("[JobStatusManager][CompleteJob] job failed", map[string]string{
			"job_name":             jobName,
			"duration":             duration.String(),
			"error":                err.Error(),
			"consecutive_failures": strconv.FormatInt(status.ConsecutiveFailures, 10),
		})
	} else {
		status.Status = JobStatusSuccess
		status.SuccessCount++
		status.ConsecutiveFailures = 0
		status.LastError = ""

		jsm.metrics.jobRuns.WithLabelValues(jobName, "success").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "success").Observe(duration.Seconds())

		jsm.logger.Info("[JobStatusManager][CompleteJob] job completed", map[string]string{
			"job_name": jobName,
			"duration": duration.String(),
		})
	}

	jsm.metrics.activeJobs.Dec()
}

func (jsm *JobStatusManager) stalled(status *JobStatus, now time.Time) bool {
	threshold := status.StallAfter
	if threshold <= 0 {
		threshold = jsm.stalledThreshold
	}
	return status.Status == JobStatusRunning && now.Sub(status.LastRunTime) > threshold
}

// GetJobStatus returns a copy of the job's status.
func (jsm *JobStatusManager) GetJobStatus(jobName string) (*JobStatus, bool) {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		return nil, false
	}
	c := status.copy()
	return &c, true
}

// GetAllJobStatuses returns copies; a run past its threshold reads as
// stalled even before the detector has marked it.
func (jsm *JobStatusManager) GetAllJobStatuses() map[string]JobStatus {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	now := time.Now()
	result := make(map[string]JobStatus, len(jsm.statuses))
	for name, status := range jsm.statuses {
		c := status.copy()
		if jsm.stalled(status, now) {
			c.Status = JobStatusStalled
		}
		result[name] = c
	}
	return result
}

func (jsm *JobStatusManager) GetJobsSummary() JobsSummary {
	statuses := jsm.GetAllJobStatuses()

	summary := JobsSummary{
		TotalJobs:      len(statuses),
		LastUpdateTime: time.Now(),
	}

	for _, status := range statuses {
		switch status.Status {
		case JobStatusRunning:
			summary.RunningJobs++
		case JobStatusSuccess:
			summary.HealthyJobs++
		case JobStatusFailed:
			summary.UnhealthyJobs++
		case JobStatusStalled:
			summary.StalledJobs++
		}
	}

	return summary
}

// detectStalledJobs marks overdue runs stalled and sets the stalled gauge
// to the number of jobs currently stalled.
func (jsm *JobStatusManager) detectStalledJobs() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	stalledCount := 0

	for jobName, status := range jsm.statuses {
		if jsm.stalled(status, now) {
			status.Status = JobStatusStalled
			status.UpdatedAt = now

			jsm.logger.Error("[JobStatusManager][detectStalledJobs] job stalled", map[string]string{
				"job_name":      jobName,
				"last_run_time": status.LastRunTime.Format(time.RFC3339),
				"running_for":   now.Sub(status.LastRunTime).String(),
			})
		}
		if status.Status == JobStatusStalled {
			stalledCount++
		}
	}

	jsm.metrics.stalledJobs.Set(float64(stalledCount))
}

// cleanupOldStatuses forgets jobs that have not run within the retention
// period. Running jobs are kept.
func (jsm *JobStatusManager) cleanupOldStatuses() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	cutoff := time.Now().Add(-jsm.retentionPeriod)
	cleaned := 0

	for jobName, status := range jsm.statuses {
		if status.UpdatedAt.Before(cutoff) && status.Status != JobStatusRunning {
			delete(jsm.statuses, jobName)
			cleaned++
		}
	}

	if cleaned > 0 {
		jsm.logger.Info("[JobStatusManager][cleanupOldStatuses] old job statuses removed", map[string]string{
			"cleaned_count": strconv.Itoa(cleaned),
		})
	}
}

// InstrumentedJob wraps a job function with monitoring and error handling.
// When an uptime URL is set, a successful run pings it.
type InstrumentedJob struct {
	jobName       string
	jobFunc       func(ctx context.Context) error
	statusManager *JobStatusManager
	logger        *logger.Logger
	timeout       time.Duration
	webhookClient *webhook.Client
	uptimeURL     string
}

// NewInstrumentedJob creates a new instrumented job wrapper
func NewInstrumentedJob(
	jobName string,
	jobFunc func(ctx context.Context) error,
	statusManager *JobStatusManager,
	logger *logger.Logger,
	timeout time.Duration,
) *InstrumentedJob {

	// Register job for monitoring
	statusManager.RegisterJob(jobName, timeout)

	return &InstrumentedJob{
		jobName:       jobName,
		jobFunc:       jobFunc,
		statusManager: statusManager,
		logger:        logger,
		timeout:       timeout,
	}
}

// NewInstrumentedJobWithWebhook is NewInstrumentedJob plus an uptime ping
// after every successful run.
func NewInstrumentedJobWithWebhook(
	jobName string,
	jobFunc func(ctx context.Context) error,
	statusManager *JobStatusManager,
	logger *logger.Logger,
	timeout time.Duration,
	webhookClient *webhook.Client,
	uptimeURL string,
) *InstrumentedJob {
	job := NewInstrumentedJob(jobName, jobFunc, statusManager, logger, timeout)
	job.webhookClient = webhookClient
	job.uptimeURL = uptimeURL
	return job
}

// Name is the job's monitoring key.
func (ij *InstrumentedJob) Name() string {
	return ij.jobName
}

// Run satisfies cron.Job.
func (ij *InstrumentedJob) Run() {
	ij.Execute()
}

// Execute runs the job with monitoring, timeout, and panic recovery. The
// job's context is cancelled on timeout.
func (ij *InstrumentedJob) Execute() error {
	// Start job tracking
	ij.statusManager.StartJob(ij.jobName)

	ctx, cancel := context.WithTimeout(context.Background(), ij.timeout)
	defer cancel()

	var err error
	var metadata map[string]interface{}

	type outcome struct {
		err      error
		metadata map[string]interface{}
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ij.logger.Error("Job panicked", map[string]string{
					"job_name": ij.jobName,
					"panic":    fmt.Sprintf("%v", r),
				})

				done <- outcome{
					err: fmt.Errorf("job panicked: %v", r),
					metadata: map[string]interface{}{
						"panic":       fmt.Sprintf("%v", r),
						"stack_trace": string(debug.Stack()),
						"error_type":  "panic",
					},
				}
			}
		}()
		done <- outcome{err: ij.jobFunc(ctx)}
	}()

	finished := false
	select {
	case out := <-done:
		err, metadata, finished = out.err, out.metadata, true
	case <-ctx.Done():
	}

	// a job that returned ctx.Err() after the deadline is a timeout too
	if !finished || (err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && metadata == nil) {
		err = fmt.Errorf("job timeout after %v", ij.timeout)
		metadata = map[string]interface{}{
			"error_type": "timeout",
			"timeout":    ij.timeout.String(),
		}
		ij.statusManager.metrics.jobTimeouts.WithLabelValues(ij.jobName).Inc()
	} else if err != nil && metadata == nil {
		metadata = map[string]interface{}{
			"error_type": classifyJobError(err),
		}
	}

	// Complete job tracking
	ij.statusManager.CompleteJob(ij.jobName, err, metadata)

	if err == nil && ij.webhookClient != nil && ij.uptimeURL != "" {
		ij.webhookClient.CallUptimeWebhook(context.Background(), ij.uptimeURL)
	}
	return err
}

// BackgroundJobMetrics contains all Prometheus metrics for background job monitoring
type BackgroundJobMetrics struct {
	jobDuration      *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
	activeJobs       prometheus.Gauge
	stalledJobs      prometheus.Gauge
	pendingPurchases *prometheus.GaugeVec
	jobTimeouts      *prometheus.CounterVec
}

// NewBackgroundJobMetrics creates a new instance of background job metrics
func NewBackgroundJobMetrics() *BackgroundJobMetrics {
	return &BackgroundJobMetrics{
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_background_job_duration_seconds",
				Help:    "Background job execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800}, // 1s to 30min
			},
			[]string{"job_name", "status"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_background_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job_name", "status"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "settlement_background_jobs_active",
				Help: "Number of currently running background jobs",
			},
		),
		stalledJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "settlement_background_jobs_stalled",
				Help: "Number of stalled background jobs",
			},
		),
		pendingPurchases: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settlement_pending_purchases",
				Help: "Purchases still pending at the last reconciliation sweep",
			},
			[]string{"tenant_id"},
		),
		jobTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_job_timeouts_total",
				Help: "Total job timeouts",
			},
			[]string{"job_name"},
		),
	}
}

// MustRegister registers all background job metrics with the provided registry
func (m *BackgroundJobMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.jobDuration,
		m.jobRuns,
		m.activeJobs,
		m.stalledJobs,
		m.pendingPurchases,
		m.jobTimeouts,
	)
}

// SetPendingPurchases records how many purchases a tenant still has pending.
func (m *BackgroundJobMetrics) SetPendingPurchases(tenantID string, count int) {
	m.pendingPurchases.WithLabelValues(tenantID).Set(float64(count))
}

// classifyJobError classifies errors into different types for better monitoring
func classifyJobError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "sql"):
		return "database"
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"):
		return "network"
	case strings.Contains(errStr, "exchange"), strings.Contains(errStr, "external"), strings.Contains(errStr, "api"):
		return "external_api"
	case strings.Contains(errStr, "tenant"):
		return "tenant"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

package health

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
	"github.com/dwarvesf/treasury-settlement/internal/monitoring"
)

// criticalJobFailures is how many failed runs in a row turn a critical job
// from degraded into unhealthy.
const criticalJobFailures = 3

// criticalJobs guard settlement correctness: without the sweep nobody sees
// orphaned payments, without the event sweep the dedup table grows forever.
var criticalJobs = []string{
	consts.JobReconciliationSweep,
	consts.JobIdempotencySweep,
}

// Jobs reports the state of the scheduled sweeps
// @Summary Background jobs health check
// @Description Reports reconciliation and idempotency sweep status
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} JobsHealthResponse
// @Success 206 {object} JobsHealthResponse
// @Failure 503 {object} JobsHealthResponse
// @Router /api/v1/health/jobs [get]
func (h *HealthHandler) Jobs(c *gin.Context) {
	start := time.Now()

	response := JobsHealthResponse{
		Status:    statusUnhealthy,
		Timestamp: start,
		Jobs:      map[string]monitoring.JobStatus{},
	}
	if h.jobStatusManager != nil {
		response.Jobs = h.jobStatusManager.GetAllJobStatuses()
		response.Summary = h.jobStatusManager.GetJobsSummary()
		response.Status = jobsVerdict(response.Jobs, response.Summary)
	}
	response.DurationMs = time.Since(start).Milliseconds()

	h.logger.Info("[HealthHandler][Jobs] jobs health check completed", map[string]string{
		"status":        response.Status,
		"durationMs":    strconv.FormatInt(response.DurationMs, 10),
		"totalJobs":     strconv.Itoa(response.Summary.TotalJobs),
		"unhealthyJobs": strconv.Itoa(response.Summary.UnhealthyJobs),
		"stalledJobs":   strconv.Itoa(response.Summary.StalledJobs),
	})

	c.JSON(httpStatusFor(response.Status), response)
}

// jobsVerdict is unhealthy on a stalled job or a critical job that keeps
// failing, degraded on any other unhealthy job.
func jobsVerdict(jobs map[string]monitoring.JobStatus, summary monitoring.JobsSummary) string {
	if summary.StalledJobs > 0 {
		return statusUnhealthy
	}
	if summary.UnhealthyJobs == 0 {
		return statusHealthy
	}
	for _, name := range criticalJobs {
		job, ok := jobs[name]
		if ok && job.Status == monitoring.JobStatusFailed && job.ConsecutiveFailures >= criticalJobFailures {
			return statusUnhealthy
		}
	}
	return statusDegraded
}

func httpStatusFor(status string) int {
	switch status {
	case statusUnhealthy:
		return http.StatusServiceUnavailable
	case statusDegraded:
		return http.StatusPartialContent
	default:
		return http.StatusOK
	}
}

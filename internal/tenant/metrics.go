package tenant

import "time"

// Metrics receives partition access timings and tenant cache outcomes.
type Metrics interface {
	RecordDatabaseOperation(operationType, status string, duration float64)
	RecordCacheOperation(cacheType, operation string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDatabaseOperation(string, string, float64) {}
func (noopMetrics) RecordCacheOperation(string, string)             {}

func observe(m Metrics, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RecordDatabaseOperation(operation, status, time.Since(start).Seconds())
}

package diagnostics

// SystemStatus represents the overall health state derived from a battery.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Summarize aggregates results, worst case wins: any fail is critical, any
// warning is degraded.
func Summarize(results []Result) SystemStatus {
	status := StatusHealthy
	for _, res := range results {
		switch res.Status {
		case StatusFail:
			return StatusCritical
		case StatusWarning:
			status = StatusDegraded
		}
	}
	return status
}

package driven

import (
	"time"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// MetricsRecorder receives operational measurements.
// Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	// ObserveBuild records a settled update.
	ObserveBuild(status domain.BuildStatus, duration time.Duration)

	// ObserveDataset records a dataset load.
	ObserveDataset(dataset string, action domain.DatasetAction, entities int, err error)

	// SetIndexState records the lifecycle state.
	SetIndexState(state domain.IndexState)

	// ObserveQuery records a match or search query.
	ObserveQuery(kind string, duration time.Duration, err error)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

// ObserveBuild implements MetricsRecorder.
func (NopMetrics) ObserveBuild(domain.BuildStatus, time.Duration) {}

// ObserveDataset implements MetricsRecorder.
func (NopMetrics) ObserveDataset(string, domain.DatasetAction, int, error) {}

// SetIndexState implements MetricsRecorder.
func (NopMetrics) SetIndexState(domain.IndexState) {}

// ObserveQuery implements MetricsRecorder.
func (NopMetrics) ObserveQuery(string, time.Duration, error) {}

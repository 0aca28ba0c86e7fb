package metrics

// Recorder defines the minimal interface the acquisition pipeline records
// through, so components depend on an abstraction rather than concrete
// Prometheus metrics.
type Recorder interface {
	// RecordAcquisition counts a finished acquisition. stage names the failed
	// stage and is empty on success.
	RecordAcquisition(stage string, durationSeconds float64)
	RecordCacheLookup(hit bool)
	RecordCacheError(operation string)
	RecordFetchFailure(class string)
	RecordDecode(err error, frames int64, durationSeconds float64)
	RecordRender(kind string, frames int64)
	AcquisitionStarted()
	AcquisitionDone()
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordAcquisition(string, float64) {}
func (NopRecorder) RecordCacheLookup(bool) {}
func (NopRecorder) RecordCacheError(string) {}
func (NopRecorder) RecordFetchFailure(string) {}
func (NopRecorder) RecordDecode(error, int64, float64) {}
func (NopRecorder) RecordRender(string, int64) {}
func (NopRecorder) AcquisitionStarted() {}
func (NopRecorder) AcquisitionDone() {}

var (
	_ Recorder = (*AcquisitionMetrics)(nil)
	_ Recorder = NopRecorder{}
)

// Package metrics defines the recording contract components emit to.
// The pipeline owns the metric names and labels; backends (Prometheus,
// OTel, statsd) plug in by implementing Recorder.
package metrics

// Metric names emitted by the pipeline.
const (
	FetchRequests       = "fetch_requests_total"
	FetchFailures       = "fetch_failures_total"
	FetchDuration       = "fetch_duration_seconds"
	CacheHits           = "cache_hits_total"
	StaleServed         = "stale_served_total"
	RateLimitRejections = "ratelimit_rejections_total"
	Retries             = "retries_total"
)

// Labels attach dimensions to one recording. Implementations must not
// retain the map.
type Labels map[string]string

// Recorder is the sink for counters and duration observations.
type Recorder interface {
	// Inc adds one to the named counter.
	Inc(name string, labels Labels)

	// Add adds delta to the named counter.
	Add(name string, labels Labels, delta int64)

	// Observe records one duration sample in seconds.
	Observe(name string, labels Labels, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) Inc(string, Labels)              {}
func (nopRecorder) Add(string, Labels, int64)       {}
func (nopRecorder) Observe(string, Labels, float64) {}

// NewNop returns a Recorder that discards everything.
func NewNop() Recorder {
	return nopRecorder{}
}

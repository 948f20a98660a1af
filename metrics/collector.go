package metrics

import (
	"sort"
	"strings"
	"sync"
)

// DurationSummary aggregates the samples seen for one duration metric.
type DurationSummary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Collector is an in-process Recorder for tests, stats endpoints, and
// deployments without a metrics backend.
type Collector struct {
	mu        sync.RWMutex
	counters  map[string]int64
	durations map[string]*DurationSummary
}

func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]int64),
		durations: make(map[string]*DurationSummary),
	}
}

func (c *Collector) Inc(name string, labels Labels) {
	c.Add(name, labels, 1)
}

func (c *Collector) Add(name string, labels Labels, delta int64) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

func (c *Collector) Observe(name string, labels Labels, seconds float64) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.durations[key]
	if !ok {
		s = &DurationSummary{Min: seconds, Max: seconds}
		c.durations[key] = s
	}
	s.Count++
	s.Sum += seconds
	if seconds < s.Min {
		s.Min = seconds
	}
	if seconds > s.Max {
		s.Max = seconds
	}
}

// Counter returns the current value of one series.
func (c *Collector) Counter(name string, labels Labels) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[seriesKey(name, labels)]
}

// Counters snapshots every counter series, keyed "name{k=v,...}".
func (c *Collector) Counters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// Durations snapshots every duration series.
func (c *Collector) Durations() map[string]DurationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]DurationSummary, len(c.durations))
	for k, s := range c.durations {
		out[k] = *s
	}
	return out
}

// Reset clears all series.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]int64)
	c.durations = make(map[string]*DurationSummary)
}

// seriesKey renders a stable identity for one name+labels combination.
// Label order in the input does not matter.
func seriesKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

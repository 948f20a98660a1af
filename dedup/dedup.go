package dedup

import "sync"

// Mode reports which backing structure a Deduplicator currently uses.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeBloom Mode = "bloom"
)

// Config configures a Deduplicator.
type Config struct {
	ExpectedItems       int     `mapstructure:"expected_items"`
	FalsePositiveRate   float64 `mapstructure:"false_positive_rate"`
	UseExactCheck       bool    `mapstructure:"use_exact_check"`
	ExactCheckThreshold int     `mapstructure:"exact_check_threshold"`
}

// DefaultConfig returns the standard deduplicator settings.
func DefaultConfig() Config {
	return Config{
		ExpectedItems:       100000,
		FalsePositiveRate:   0.01,
		UseExactCheck:       true,
		ExactCheckThreshold: 10000,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ExpectedItems <= 0 {
		c.ExpectedItems = def.ExpectedItems
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = def.FalsePositiveRate
	}
	if c.ExactCheckThreshold <= 0 {
		c.ExactCheckThreshold = def.ExactCheckThreshold
	}
}

// Deduplicator tracks seen keys with zero false positives while small, then
// migrates permanently to a Bloom filter to bound memory. After migration a
// duplicate verdict may rarely be a false positive; the transition never
// reverts. Safe for concurrent use.
type Deduplicator struct {
	bloom     *BloomFilter
	exactSet  map[string]struct{} // nil after migration
	useExact  bool
	threshold int
	mu        sync.Mutex
}

// Stats describes the deduplicator's current mode and occupancy.
type Stats struct {
	Mode         Mode
	ExactSetSize int
	Bloom        *BloomStats
}

// NewDeduplicator builds a deduplicator from cfg; zero-valued fields get
// defaults.
func NewDeduplicator(cfg Config) *Deduplicator {
	cfg.applyDefaults()
	d := &Deduplicator{
		bloom:     NewBloomFilter(cfg.ExpectedItems, cfg.FalsePositiveRate),
		useExact:  cfg.UseExactCheck,
		threshold: cfg.ExactCheckThreshold,
	}
	if cfg.UseExactCheck {
		d.exactSet = make(map[string]struct{})
	}
	return d
}

// IsDuplicate reports whether key has been seen and records it if not.
func (d *Deduplicator) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exactSet != nil {
		if _, seen := d.exactSet[key]; seen {
			return true
		}
		d.exactSet[key] = struct{}{}
		if len(d.exactSet) > d.threshold {
			d.migrateLocked()
		}
		return false
	}

	if d.bloom.Contains(key) {
		return true
	}
	d.bloom.Add(key)
	return false
}

// Add records key without a duplicate check.
func (d *Deduplicator) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exactSet != nil {
		d.exactSet[key] = struct{}{}
		if len(d.exactSet) > d.threshold {
			d.migrateLocked()
		}
		return
	}
	d.bloom.Add(key)
}

// migrateLocked flushes the exact set into the Bloom filter and drops it.
func (d *Deduplicator) migrateLocked() {
	for key := range d.exactSet {
		d.bloom.Add(key)
	}
	d.exactSet = nil
}

// Clear empties the filter and, if exact checking was configured originally,
// restores exact mode.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bloom.Clear()
	if d.useExact {
		d.exactSet = make(map[string]struct{})
	}
}

// Mode reports the current backing structure.
func (d *Deduplicator) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exactSet != nil {
		return ModeExact
	}
	return ModeBloom
}

// Stats returns a snapshot of the current mode and sizes.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exactSet != nil {
		return Stats{Mode: ModeExact, ExactSetSize: len(d.exactSet)}
	}
	bs := d.bloom.Stats()
	return Stats{Mode: ModeBloom, Bloom: &bs}
}

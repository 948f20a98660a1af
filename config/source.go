// Package config loads application configuration from layered sources.
//
// Sources are merged by priority: defaults < config.yaml < <env>.yaml <
// environment variables. Every subsystem exposes its own config struct;
// this package only loads, merges, and validates them.
package config

// Source is a configuration data source. Keys in the returned map are
// dot-separated paths such as "cache.l1.max_entries".
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Priority orders merging; higher values override lower ones.
	// Convention: file 10, env-specific file 20, environment variables 50.
	Priority() int

	// Load reads the source into a flat key map.
	Load() (map[string]any, error)
}

// Validator is implemented by config structs that can check themselves.
type Validator interface {
	Validate() error
}

// ValidateAll runs every validator, stopping at the first failure.
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

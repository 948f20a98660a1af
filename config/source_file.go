package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// FileSource loads a YAML/JSON/TOML file through viper.
// A missing file is not an error so optional overlays (dev.yaml, prod.yaml)
// can be listed unconditionally.
type FileSource struct {
	path     string
	priority int
}

func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{path: path, priority: priority}
}

func (s *FileSource) Name() string {
	return "file:" + s.path
}

func (s *FileSource) Priority() int {
	return s.priority
}

func (s *FileSource) Load() (map[string]any, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("stat config file %s: %w", s.path, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", s.path, err)
	}

	return flattenMap("", v.AllSettings()), nil
}

// flattenMap turns nested maps into dot-separated keys:
// {"cache": {"l1": {"max_entries": 5000}}} -> {"cache.l1.max_entries": 5000}.
func flattenMap(prefix string, data map[string]any) map[string]any {
	result := make(map[string]any)
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			for nk, nv := range flattenMap(fullKey, v) {
				result[nk] = nv
			}
		default:
			result[fullKey] = value
		}
	}
	return result
}

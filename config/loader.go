package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges configuration sources and exposes the result through viper.
type Loader struct {
	sources     []Source
	merged      map[string]any
	v           *viper.Viper
	loadedFiles []string
}

func NewLoader() *Loader {
	return &Loader{
		sources: make([]Source, 0),
		merged:  make(map[string]any),
		v:       viper.New(),
	}
}

// AddSource registers a data source; call Load afterwards.
func (l *Loader) AddSource(source Source) {
	l.sources = append(l.sources, source)
}

// Load reads every source in priority order and merges the results.
// Higher-priority sources override keys from lower-priority ones.
func (l *Loader) Load() error {
	sort.Slice(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.merged = make(map[string]any)
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load source %s: %w", source.Name(), err)
		}
		if fs, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fs.path)
		}
		for key, value := range data {
			l.merged[key] = value
		}
	}

	l.syncToViper()
	return nil
}

func (l *Loader) syncToViper() {
	l.v = viper.New()
	for key, value := range l.merged {
		l.v.Set(key, value)
	}
}

// Unmarshal decodes the merged configuration into a struct using
// mapstructure tags.
func (l *Loader) Unmarshal(out any) error {
	return l.v.Unmarshal(out)
}

// UnmarshalKey decodes a single subtree, e.g. "ratelimit".
func (l *Loader) UnmarshalKey(key string, out any) error {
	return l.v.UnmarshalKey(key, out)
}

func (l *Loader) Get(key string) any          { return l.v.Get(key) }
func (l *Loader) GetString(key string) string { return l.v.GetString(key) }
func (l *Loader) GetInt(key string) int       { return l.v.GetInt(key) }
func (l *Loader) GetBool(key string) bool     { return l.v.GetBool(key) }
func (l *Loader) IsSet(key string) bool       { return l.v.IsSet(key) }

// LoadedFiles lists the files that contributed configuration, in merge order.
func (l *Loader) LoadedFiles() []string {
	return l.loadedFiles
}

// NewDefaultLoader builds the standard source stack for a config directory:
// config.yaml, then <env>.yaml, then PROPSTREAM_* environment variables.
func NewDefaultLoader(configDir string) (*Loader, error) {
	loader := NewLoader()
	if configDir != "" {
		loader.AddSource(NewFileSource(filepath.Join(configDir, "config.yaml"), 10))
		if env := Env(); env != "" {
			loader.AddSource(NewFileSource(filepath.Join(configDir, env+".yaml"), 20))
		}
	}
	loader.AddSource(NewEnvSource("PROPSTREAM", 50))
	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Env returns the active environment name (APP_ENV, then ENV, then "dev").
func Env() string {
	for _, key := range []string{"APP_ENV", "ENV"} {
		if env := strings.TrimSpace(os.Getenv(key)); env != "" {
			return env
		}
	}
	return "dev"
}

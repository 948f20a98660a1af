package logger

// ManagerConfig global logging configuration (shared by all modules).
type ManagerConfig struct {
	Level         string `mapstructure:"level"`           // debug/info/warn/error
	AppName       string `mapstructure:"app_name"`        // injected into every record
	Encoding      string `mapstructure:"encoding"`        // json or console
	EnableConsole bool   `mapstructure:"enable_console"`  // mirror records to stderr
	EnableFile    bool   `mapstructure:"enable_file"`     // write per-module files
	BaseLogDir    string `mapstructure:"base_log_dir"`    // log root directory
	MaxSize       int    `mapstructure:"max_size"`        // single file size (MB)
	MaxBackups    int    `mapstructure:"max_backups"`     // old files kept
	MaxAge        int    `mapstructure:"max_age"`         // retention days
	Compress      bool   `mapstructure:"compress"`        // gzip rotated files
	EnableCaller  bool   `mapstructure:"enable_caller"`   // caller annotations
	RequestIDKey  string `mapstructure:"request_id_key"`  // context key for request id
}

// DefaultManagerConfig returns the default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Level:         "info",
		Encoding:      "json",
		EnableConsole: true,
		EnableFile:    false,
		BaseLogDir:    "logs",
		MaxSize:       100,
		MaxBackups:    5,
		MaxAge:        14,
		Compress:      true,
		EnableCaller:  true,
		RequestIDKey:  "request_id",
	}
}

// ApplyDefaults fills zero-valued fields.
func (c *ManagerConfig) ApplyDefaults() {
	def := DefaultManagerConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Encoding == "" {
		c.Encoding = def.Encoding
	}
	if c.BaseLogDir == "" {
		c.BaseLogDir = def.BaseLogDir
	}
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}
	if c.RequestIDKey == "" {
		c.RequestIDKey = def.RequestIDKey
	}
}

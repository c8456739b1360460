package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
	// AllowedOrigins lists browser origins allowed to call the API. "*" allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Persistence struct {
	FilePath     string        `yaml:"filePath" validate:"required|unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"required|min:1"`
	// SyncWrites rewrites the snapshot after every credit instead of waiting for SaveInterval.
	SyncWrites       bool   `yaml:"syncWrites"`
	CompressionLevel string `yaml:"compressionLevel" validate:"in:fastest,default,better,best"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type LedgerConfig struct {
	HistoryLimit    int           `yaml:"historyLimit"`
	LeaderboardSize int           `yaml:"leaderboardSize"`
	ReportIDTTL     time.Duration `yaml:"reportIdTTL"`
	MaxLedgers      int           `yaml:"maxLedgers"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"in:file,postgres"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConnections  int32         `yaml:"maxConnections"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	ApplicationName string        `yaml:"applicationName"`
	MaxRetries      int           `yaml:"maxRetries"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ArchiveConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
	Buckets int           `yaml:"buckets"`
}

type AuthConfig struct {
	// DemoMode accepts the user id from UserHeader without verification.
	DemoMode   bool   `yaml:"demoMode"`
	UserHeader string `yaml:"userHeader"`
	BotToken   string `yaml:"botToken"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	Ledger      LedgerConfig   `yaml:"ledger"`
	Storage     StorageConfig  `yaml:"storage"`
	Postgres    PostgresConfig `yaml:"postgres"`
	Redis       RedisConfig    `yaml:"redis"`
	Archive     ArchiveConfig  `yaml:"archive"`
	Auth        AuthConfig     `yaml:"auth"`
	WebServer   Server         `yaml:"webServer"`
	Persistence Persistence    `yaml:"persistence"`
	Logger      LoggerConfig   `yaml:"logger"`
	Cache       CacheConfig    `yaml:"cache"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

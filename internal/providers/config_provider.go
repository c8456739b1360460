package providers

import (
	"fmt"
	"github.com/spf13/viper"
	"path/filepath"
	"streamflix/internal/structures"
	"strings"
	"time"
)

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", "file")
	v.SetDefault("ledger.historyLimit", 100)
	v.SetDefault("ledger.leaderboardSize", 10)
	v.SetDefault("ledger.reportIdTTL", 10*time.Minute)
	v.SetDefault("cache.ttl", 2*time.Second)
	v.SetDefault("auth.userHeader", "X-User-Id")
	v.SetDefault("archive.buckets", 16)
	v.SetDefault("redis.timeout", 500*time.Millisecond)
	v.SetDefault("postgres.maxRetries", 5)
	v.SetDefault("postgres.applicationName", "streamflix-ledgerd")
	v.SetDefault("persistence.compressionLevel", "default")
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")
	setConfigDefaults(v)

	v.BindEnv("logger.level", "STREAMFLIX_LOG_LEVEL")
	v.BindEnv("persistence.saveInterval", "STREAMFLIX_SAVE_INTERVAL")
	v.BindEnv("persistence.syncWrites", "STREAMFLIX_SYNC_WRITES")
	v.BindEnv("cache.enabled", "STREAMFLIX_CACHE_ENABLED")
	v.BindEnv("cache.size", "STREAMFLIX_CACHE_SIZE")
	v.BindEnv("storage.driver", "STREAMFLIX_STORAGE_DRIVER")
	v.BindEnv("postgres.dsn", "STREAMFLIX_POSTGRES_DSN")
	v.BindEnv("redis.enabled", "STREAMFLIX_REDIS_ENABLED")
	v.BindEnv("redis.addr", "STREAMFLIX_REDIS_ADDR")
	v.BindEnv("redis.password", "STREAMFLIX_REDIS_PASSWORD")
	v.BindEnv("auth.demoMode", "STREAMFLIX_DEMO_MODE")
	v.BindEnv("auth.botToken", "TELEGRAM_BOT_TOKEN")
	// comma separated
	v.BindEnv("webServer.allowedOrigins", "STREAMFLIX_ALLOWED_ORIGINS")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "StreamFlixLedger"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Minio     MinioConfig     `mapstructure:"minio"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	CORSOrigin      string        `mapstructure:"cors_origin"`
	RateLimit       int           `mapstructure:"rate_limit"` // requests per window per IP
	RateWindow      time.Duration `mapstructure:"rate_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// UploadConfig 上传配置
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// AnalysisConfig 分析缓存配置
type AnalysisConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SynthesisConfig 路线合成配置
type SynthesisConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	MinSimilarity float64       `mapstructure:"min_similarity"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	CorpusScope   string        `mapstructure:"corpus_scope"` // all, owner
	MinAreaKm2    float64       `mapstructure:"min_area_km2"`
	MaxAreaKm2    float64       `mapstructure:"max_area_km2"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// RedisConfig Redis 配置，Addr 为空时不启用
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	JobTTL   time.Duration `mapstructure:"job_ttl"`
}

// MinioConfig MinIO 配置，Endpoint 为空时不启用
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Corpus scopes
const (
	CorpusScopeAll   = "all"
	CorpusScopeOwner = "owner"
)

const minSecretLength = 32

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.path", "./data/volt.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("upload.max_bytes", 50<<20)

	v.SetDefault("analysis.cache_ttl", 10*time.Minute)

	v.SetDefault("synthesis.workers", 2)
	v.SetDefault("synthesis.queue_size", 64)
	v.SetDefault("synthesis.job_timeout", 2*time.Minute)
	v.SetDefault("synthesis.min_similarity", 0.5)
	v.SetDefault("synthesis.max_candidates", 2000)
	v.SetDefault("synthesis.corpus_scope", CorpusScopeAll)
	v.SetDefault("synthesis.min_area_km2", 1.0)
	v.SetDefault("synthesis.max_area_km2", 10000.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.job_ttl", 24*time.Hour)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.bucket", "volt")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.use_ssl", false)
}

// Load 加载配置：默认值 < 配置文件 < 环境变量（如 SERVER_PORT、AUTH_JWT_SECRET）
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// flat names kept from earlier deployments
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("database.path", "DATABASE_PATH", "DB_PATH")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("server.cors_origin", "SERVER_CORS_ORIGIN", "CORS_ORIGIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !strings.HasPrefix(cfg.Server.Port, ":") && !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Mode != "debug" && len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d characters", minSecretLength))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Synthesis.Workers < 1 {
		errs = append(errs, errors.New("synthesis.workers must be at least 1"))
	}
	if c.Synthesis.QueueSize < 1 {
		errs = append(errs, errors.New("synthesis.queue_size must be at least 1"))
	}
	if c.Synthesis.MinSimilarity < 0 || c.Synthesis.MinSimilarity > 1 {
		errs = append(errs, errors.New("synthesis.min_similarity must be within [0, 1]"))
	}
	if c.Synthesis.CorpusScope != CorpusScopeAll && c.Synthesis.CorpusScope != CorpusScopeOwner {
		errs = append(errs, fmt.Errorf("synthesis.corpus_scope must be %q or %q", CorpusScopeAll, CorpusScopeOwner))
	}
	if c.Synthesis.MinAreaKm2 < 0 || c.Synthesis.MaxAreaKm2 <= c.Synthesis.MinAreaKm2 {
		errs = append(errs, errors.New("synthesis area limits are inconsistent"))
	}

	return errors.Join(errs...)
}

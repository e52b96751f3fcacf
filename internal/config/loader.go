package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Security  SecurityConfig  `mapstructure:"security"`
	Features  FeaturesConfig  `mapstructure:"features"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DownloadsConfig describes the shared output directory and its retention.
type DownloadsConfig struct {
	Dir                string        `mapstructure:"dir"`
	MaxFileAge         time.Duration `mapstructure:"max_file_age"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	AllowedURLPrefixes []string      `mapstructure:"allowed_url_prefixes"`
	DefaultFormat      string        `mapstructure:"default_format"`
	DefaultBitrate     string        `mapstructure:"default_bitrate"`
}

// WorkerConfig controls how the external downloader is launched and supervised.
type WorkerConfig struct {
	Command         []string      `mapstructure:"command"`
	QueueSize       int           `mapstructure:"queue_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	OverallTimeout  time.Duration `mapstructure:"overall_timeout"`
	StopOnFirstFile bool          `mapstructure:"stop_on_first_file"`
	KillGrace       time.Duration `mapstructure:"kill_grace"`
}

type TasksConfig struct {
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	EvictInterval time.Duration `mapstructure:"evict_interval"`
}

type DatabaseConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Name              string        `mapstructure:"name"`
	SSLMode           string        `mapstructure:"sslmode"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	TimelineRetention time.Duration `mapstructure:"timeline_retention"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RemoteConfig points at an optional SFTP target that receives a copy of every
// completed download.
type RemoteConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	PrivateKey     string        `mapstructure:"private_key"`
	Dir            string        `mapstructure:"dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("downloads.dir", "./downloads")
	v.SetDefault("downloads.max_file_age", 24*time.Hour)
	v.SetDefault("downloads.cleanup_interval", time.Hour)
	v.SetDefault("downloads.allowed_url_prefixes", []string{"https://open.spotify.com/"})
	v.SetDefault("downloads.default_format", "mp3")
	v.SetDefault("downloads.default_bitrate", "320k")

	v.SetDefault("worker.command", []string{"python", "-m", "spotdl"})
	v.SetDefault("worker.queue_size", 32)
	v.SetDefault("worker.poll_interval", 500*time.Millisecond)
	v.SetDefault("worker.idle_timeout", 5*time.Minute)
	v.SetDefault("worker.overall_timeout", 15*time.Minute)
	v.SetDefault("worker.stop_on_first_file", false)
	v.SetDefault("worker.kill_grace", 5*time.Second)

	v.SetDefault("tasks.grace_period", 5*time.Minute)
	v.SetDefault("tasks.evict_interval", time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "trackdrop")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "trackdrop")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.timeline_retention", 7*24*time.Hour)

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.host", "")
	v.SetDefault("remote.user", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.private_key", "")
	v.SetDefault("remote.port", 22)
	v.SetDefault("remote.dir", "/srv/trackdrop")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.publish_timeout", 5*time.Minute)

	v.SetDefault("security.encryption_key", "")

	v.SetDefault("features.request_id_header", "X-Request-ID")
	v.SetDefault("features.enable_request_logging", true)
}

// Load reads the YAML file at path (when it exists), applies TRACKDROP_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRACKDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Downloads.Dir == "" {
		return fmt.Errorf("downloads.dir cannot be empty")
	}
	if c.Downloads.MaxFileAge <= 0 {
		return fmt.Errorf("downloads.max_file_age must be positive, got: %s", c.Downloads.MaxFileAge)
	}
	if c.Downloads.CleanupInterval <= 0 {
		return fmt.Errorf("downloads.cleanup_interval must be positive, got: %s", c.Downloads.CleanupInterval)
	}
	if len(c.Worker.Command) == 0 || c.Worker.Command[0] == "" {
		return fmt.Errorf("worker.command cannot be empty")
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be positive, got: %d", c.Worker.QueueSize)
	}
	if c.Worker.PollInterval <= 0 || c.Worker.IdleTimeout <= 0 || c.Worker.OverallTimeout <= 0 {
		return fmt.Errorf("worker poll_interval, idle_timeout and overall_timeout must be positive")
	}
	if c.Tasks.GracePeriod <= 0 || c.Tasks.EvictInterval <= 0 {
		return fmt.Errorf("tasks.grace_period and tasks.evict_interval must be positive")
	}
	if c.Remote.Enabled && (c.Remote.Host == "" || c.Remote.User == "") {
		return fmt.Errorf("remote.host and remote.user are required when remote.enabled is true")
	}
	if c.Remote.Enabled && c.Remote.PublishTimeout <= 0 {
		return fmt.Errorf("remote.publish_timeout must be positive, got: %s", c.Remote.PublishTimeout)
	}
	return nil
}

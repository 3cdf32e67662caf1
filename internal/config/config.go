package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gleipnir/internal/engine"
	"gleipnir/internal/intake"
	"gleipnir/internal/sink"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Workers int    `yaml:"workers"`
}

type IntakeConfig struct {
	Capacity int           `yaml:"capacity"`
	MinWait  time.Duration `yaml:"min_wait"`
	MaxWait  time.Duration `yaml:"max_wait"`
	Policy   string        `yaml:"policy"`
}

type EngineConfig struct {
	Capacity      int    `yaml:"capacity"`
	OCOPeerOnKill string `yaml:"oco_peer_on_kill"`
}

type SinkConfig struct {
	Detail    bool          `yaml:"detail"`
	MinWait   time.Duration `yaml:"min_wait"`
	MaxWait   time.Duration `yaml:"max_wait"`
	BatchSize int           `yaml:"batch_size"`
}

// KafkaConfig enables the event publisher when brokers are listed.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AppConfig struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Intake IntakeConfig `yaml:"intake"`
	Engine EngineConfig `yaml:"engine"`
	Sink   SinkConfig   `yaml:"sink"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

func Default() *AppConfig {
	return &AppConfig{
		Log: LogConfig{Level: "info", Console: true},
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    9001,
			Workers: 10,
		},
		Intake: IntakeConfig{
			Capacity: intake.DefaultCapacity,
			MinWait:  50 * time.Microsecond,
			MaxWait:  10 * time.Millisecond,
			Policy:   intake.TerminateFirst.String(),
		},
		Engine: EngineConfig{
			Capacity:      1 << 16,
			OCOPeerOnKill: engine.PeerSurvivesKill.String(),
		},
		Sink: SinkConfig{
			MinWait:   50 * time.Microsecond,
			MaxWait:   10 * time.Millisecond,
			BatchSize: 1024,
		},
		Kafka: KafkaConfig{Topic: "executions"},
	}
}

// Load reads the config from filePath, falling back to CONFIG_FILE. ${VAR}
// references are expanded from the environment. Without any file the
// defaults are returned.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()
	if len(filePath) == 0 {
		log.Debug().Msg("no config file, using defaults")
		return cfg, cfg.Validate()
	}

	log.Debug().Str("path", filePath).Msg("loading config")
	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (cfg *AppConfig) Validate() error {
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Log.Level, ErrInvalidConfig)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d: %w", cfg.Server.Port, ErrInvalidConfig)
	}
	if cfg.Server.Workers <= 0 {
		return fmt.Errorf("server workers %d: %w", cfg.Server.Workers, ErrInvalidConfig)
	}
	if cfg.Intake.Capacity <= 0 {
		return fmt.Errorf("intake capacity %d: %w", cfg.Intake.Capacity, ErrInvalidConfig)
	}
	if cfg.Engine.Capacity <= 0 {
		return fmt.Errorf("engine capacity %d: %w", cfg.Engine.Capacity, ErrInvalidConfig)
	}
	if cfg.Intake.MinWait <= 0 || cfg.Intake.MaxWait < cfg.Intake.MinWait {
		return fmt.Errorf("intake waits %v..%v: %w", cfg.Intake.MinWait, cfg.Intake.MaxWait, ErrInvalidConfig)
	}
	if cfg.Sink.MinWait <= 0 || cfg.Sink.MaxWait < cfg.Sink.MinWait {
		return fmt.Errorf("sink waits %v..%v: %w", cfg.Sink.MinWait, cfg.Sink.MaxWait, ErrInvalidConfig)
	}
	if _, err := intake.ParsePolicy(cfg.Intake.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := engine.ParseOCOPeerOnKill(cfg.Engine.OCOPeerOnKill); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic missing: %w", ErrInvalidConfig)
	}
	return nil
}

// ForIntake converts the intake section. Validate must have passed.
func (cfg *AppConfig) ForIntake() intake.Config {
	policy, _ := intake.ParsePolicy(cfg.Intake.Policy)
	return intake.Config{
		Capacity: cfg.Intake.Capacity,
		MinWait:  cfg.Intake.MinWait,
		MaxWait:  cfg.Intake.MaxWait,
		Policy:   policy,
	}
}

// ForEngine converts the engine section. Validate must have passed.
func (cfg *AppConfig) ForEngine() engine.Config {
	policy, _ := engine.ParseOCOPeerOnKill(cfg.Engine.OCOPeerOnKill)
	return engine.Config{
		Capacity:      cfg.Engine.Capacity,
		OCOPeerOnKill: policy,
	}
}

func (cfg *AppConfig) ForSink() sink.Config {
	return sink.Config{
		MinWait:   cfg.Sink.MinWait,
		MaxWait:   cfg.Sink.MaxWait,
		BatchSize: cfg.Sink.BatchSize,
	}
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro})
	}
}

package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds mossdb configuration
type Config struct {
	Engine EngineConfig  `json:"engine" yaml:"engine"`
	Logger logger.Config `json:"logger" yaml:"logger"`
}

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// DataDir is the directory holding the segment files.
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// SegmentSizeLimit is the active-segment size in bytes at which the
	// engine rotates to a new segment.
	SegmentSizeLimit int64 `json:"segment_size_limit" yaml:"segment_size_limit"`
	// MaxSegments is the segment count above which the two oldest
	// segments are merged before the next write.
	MaxSegments int `json:"max_segments" yaml:"max_segments"`
	// FSync forces a sync after every append.
	FSync bool `json:"fsync" yaml:"fsync"`
}

const (
	// DefaultSegmentSizeLimit is (8+1 + 8+1)*2: two single-byte kv pairs
	// per segment. Tiny on purpose, to exercise rotation; raise it for
	// real workloads.
	DefaultSegmentSizeLimit = 36

	// DefaultMaxSegments keeps at most two frozen-plus-active segments
	// before a merge is forced.
	DefaultMaxSegments = 2
)

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DataDir:          "./data",
			SegmentSizeLimit: DefaultSegmentSizeLimit,
			MaxSegments:      DefaultMaxSegments,
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "kv", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClusterConfig contains all configuration for one worker of a distributed
// sort run. Every worker in the group loads the same file; the rank picks the
// listen address out of Cluster.Workers.
type ClusterConfig struct {
	Cluster ClusterGroupConfig `mapstructure:"cluster"`
	IO      IOConfig           `mapstructure:"io"`
	Logging LoggingConfig      `mapstructure:"logging"`
}

// ClusterGroupConfig describes the fixed worker group.
type ClusterGroupConfig struct {
	Name        string        `mapstructure:"name"`
	Workers     []string      `mapstructure:"workers"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// IOConfig contains record reading limits.
type IOConfig struct {
	MaxRecordLength int `mapstructure:"max_record_length"`
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
}

// LoadCluster loads the cluster configuration from the given path.
// If configPath is empty, it looks for cluster.yaml in the config/ directory.
// Environment variables with SEQSORT_ prefix override config file values.
func LoadCluster(configPath string) (*ClusterConfig, error) {
	v := viper.New()

	v.SetDefault("cluster.name", "seqsort")
	v.SetDefault("cluster.workers", []string{"localhost:7701"})
	v.SetDefault("cluster.dial_timeout", 10*time.Second)
	v.SetDefault("io.max_record_length", 1024)
	v.SetDefault("io.read_buffer_size", 1024*1024)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cluster")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SEQSORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ClusterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ClusterConfig) validate() error {
	if len(c.Cluster.Workers) == 0 {
		return fmt.Errorf("cluster.workers must list at least one address")
	}
	if c.IO.MaxRecordLength <= 0 {
		return fmt.Errorf("io.max_record_length must be positive, got %d", c.IO.MaxRecordLength)
	}
	if c.IO.ReadBufferSize < c.IO.MaxRecordLength {
		return fmt.Errorf(
			"io.read_buffer_size (%d) must be at least io.max_record_length (%d)",
			c.IO.ReadBufferSize, c.IO.MaxRecordLength,
		)
	}
	return nil
}

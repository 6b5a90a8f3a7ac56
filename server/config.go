package server

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the server configuration.
type Config struct {
	Server struct {
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	AWS struct {
		Region   string `yaml:"region"`
		DynamoDB struct {
			Table string `yaml:"table"`
		} `yaml:"dynamodb"`
		S3 struct {
			Bucket string `yaml:"bucket"`
		} `yaml:"s3"`
		ElastiCache struct {
			Address string `yaml:"address"`
			TTL     int    `yaml:"ttl"`
		} `yaml:"elasticache"`
	} `yaml:"aws"`
}

// LoadConfig loads the configuration from a file. Table and bucket names can
// be overridden with the TABLE_NAME and BUCKET_NAME environment variables,
// matching the deployed runtime's wiring.
func LoadConfig(path string) (*Config, error) {
	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 8081
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.DynamoDB.Table == "" {
		c.AWS.DynamoDB.Table = "mock-table"
	}
	if c.AWS.S3.Bucket == "" {
		c.AWS.S3.Bucket = "mock-bucket"
	}
	if c.AWS.ElastiCache.TTL == 0 {
		c.AWS.ElastiCache.TTL = 3600
	}
}

func (c *Config) applyEnvOverrides() {
	if table := os.Getenv("TABLE_NAME"); table != "" {
		c.AWS.DynamoDB.Table = table
	}
	if bucket := os.Getenv("BUCKET_NAME"); bucket != "" {
		c.AWS.S3.Bucket = bucket
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Server.LogLevel = level
	}
}

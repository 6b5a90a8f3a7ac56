package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "aws:\n  region: us-west-2\n")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Server.HTTPPort != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", config.Server.HTTPPort)
	}
	if config.Server.GRPCPort != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", config.Server.GRPCPort)
	}
	if config.Server.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", config.Server.LogLevel)
	}
	if config.AWS.Region != "us-west-2" {
		t.Errorf("explicit region lost, got %s", config.AWS.Region)
	}
	if config.AWS.DynamoDB.Table != "mock-table" {
		t.Errorf("expected default table, got %s", config.AWS.DynamoDB.Table)
	}
	if config.AWS.S3.Bucket != "mock-bucket" {
		t.Errorf("expected default bucket, got %s", config.AWS.S3.Bucket)
	}
	if config.AWS.ElastiCache.TTL != 3600 {
		t.Errorf("expected default TTL 3600, got %d", config.AWS.ElastiCache.TTL)
	}
}

func TestLoadConfigExplicitValues(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9090
  grpc_port: 9091
  log_level: debug
aws:
  region: eu-central-1
  dynamodb:
    table: users
  s3:
    bucket: user-files
  elasticache:
    address: localhost:6379
    ttl: 60
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Server.HTTPPort != 9090 || config.Server.GRPCPort != 9091 {
		t.Errorf("ports not loaded: %+v", config.Server)
	}
	if config.AWS.DynamoDB.Table != "users" || config.AWS.S3.Bucket != "user-files" {
		t.Errorf("resource names not loaded: %+v", config.AWS)
	}
	if config.AWS.ElastiCache.Address != "localhost:6379" || config.AWS.ElastiCache.TTL != 60 {
		t.Errorf("cache settings not loaded: %+v", config.AWS.ElastiCache)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TABLE_NAME", "prod-users")
	t.Setenv("BUCKET_NAME", "prod-files")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfigFile(t, "aws:\n  dynamodb:\n    table: from-file\n")
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.AWS.DynamoDB.Table != "prod-users" {
		t.Errorf("TABLE_NAME override lost, got %s", config.AWS.DynamoDB.Table)
	}
	if config.AWS.S3.Bucket != "prod-files" {
		t.Errorf("BUCKET_NAME override lost, got %s", config.AWS.S3.Bucket)
	}
	if config.Server.LogLevel != "warn" {
		t.Errorf("LOG_LEVEL override lost, got %s", config.Server.LogLevel)
	}
}

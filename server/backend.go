package server

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Local emulator endpoint and placeholder credentials. These are fixed: the
// emulator accepts any static key pair.
const (
	emulatorEndpoint  = "http://localhost:4566"
	emulatorRegion    = "us-east-1"
	emulatorAccessKey = "test"
	emulatorSecretKey = "test"
)

// Environment is a snapshot of the process environment signals that drive
// backend selection. It is captured once at boot and threaded into the
// server explicitly so tests can inject their own; there is no hidden
// process-wide client cache.
type Environment struct {
	// CloudRuntime is true when the process runs inside the managed cloud
	// runtime (AWS_EXECUTION_ENV is set).
	CloudRuntime bool
	// TestMode is true when running under automated tests (APP_ENV=test).
	TestMode bool
	// ForceMock is the operator's explicit opt-in to the in-process
	// simulators (USE_MOCK_AWS=true).
	ForceMock bool
	// UseEmulator opts in to a network-accessible local emulation endpoint
	// instead of either the simulators or the real backend
	// (USE_LOCALSTACK=true).
	UseEmulator bool
	// Region is the ambient cloud region.
	Region string
}

// LoadEnvironment captures the selection signals from the process environment.
func LoadEnvironment() Environment {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return Environment{
		CloudRuntime: os.Getenv("AWS_EXECUTION_ENV") != "",
		TestMode:     os.Getenv("APP_ENV") == "test",
		ForceMock:    os.Getenv("USE_MOCK_AWS") == "true",
		UseEmulator:  os.Getenv("USE_LOCALSTACK") == "true",
		Region:       region,
	}
}

// UseSimulator reports whether the in-process simulators should be used.
// The emulator flag wins over every mock signal.
func (e Environment) UseSimulator() bool {
	if e.UseEmulator {
		return false
	}
	return !e.CloudRuntime || e.TestMode || e.ForceMock
}

// Name returns the environment label used in logs and response bodies.
func (e Environment) Name() string {
	if e.UseSimulator() {
		return "local-mock"
	}
	return "aws"
}

// Backends holds the resolved store handles for one process. Both handles are
// derived from the same Environment snapshot, so a request never mixes a
// simulator table with a real bucket.
type Backends struct {
	Store     Store
	BlobStore BlobStore
}

// SelectBackends resolves the key-value and blob store handles. Selection
// order, first match wins: explicit emulator endpoint, then any mock signal,
// then the genuine remote backend with ambient credentials.
func SelectBackends(env Environment, cfg *Config) (*Backends, error) {
	switch {
	case env.UseEmulator:
		sess, err := session.NewSession(&aws.Config{
			Region:           aws.String(emulatorRegion),
			Endpoint:         aws.String(emulatorEndpoint),
			Credentials:      credentials.NewStaticCredentials(emulatorAccessKey, emulatorSecretKey, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create emulator session: %v", err)
		}
		return newRemoteBackends(sess, cfg)

	case env.UseSimulator():
		store := NewMemoryStore(cfg.AWS.DynamoDB.Table)
		store.SeedSampleData()
		blobs := NewMemoryBlobStore()
		blobs.SeedSampleData(cfg.AWS.S3.Bucket)
		return &Backends{Store: store, BlobStore: blobs}, nil

	default:
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(env.Region),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %v", err)
		}
		return newRemoteBackends(sess, cfg)
	}
}

func newRemoteBackends(sess *session.Session, cfg *Config) (*Backends, error) {
	store, err := NewDynamoDBStore(sess, cfg.AWS.DynamoDB.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB store: %v", err)
	}
	blobs, err := NewS3BlobStore(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %v", err)
	}
	return &Backends{Store: store, BlobStore: blobs}, nil
}

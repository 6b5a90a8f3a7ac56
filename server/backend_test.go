package server

import (
	"context"
	"testing"
)

func TestEnvironmentUseSimulator(t *testing.T) {
	cases := []struct {
		name string
		env  Environment
		want bool
	}{
		{"outside cloud runtime", Environment{}, true},
		{"cloud runtime", Environment{CloudRuntime: true}, false},
		{"cloud runtime but test mode", Environment{CloudRuntime: true, TestMode: true}, true},
		{"cloud runtime but forced mock", Environment{CloudRuntime: true, ForceMock: true}, true},
		{"emulator wins over mock signals", Environment{ForceMock: true, UseEmulator: true}, false},
		{"emulator outside cloud runtime", Environment{UseEmulator: true}, false},
	}
	for _, tc := range cases {
		if got := tc.env.UseSimulator(); got != tc.want {
			t.Errorf("%s: UseSimulator() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEnvironmentName(t *testing.T) {
	if name := (Environment{}).Name(); name != "local-mock" {
		t.Errorf("expected local-mock, got %s", name)
	}
	if name := (Environment{CloudRuntime: true}).Name(); name != "aws" {
		t.Errorf("expected aws, got %s", name)
	}
}

func TestSelectBackendsSimulators(t *testing.T) {
	cfg := DefaultConfig()
	for _, env := range []Environment{
		{ForceMock: true, CloudRuntime: true},
		{TestMode: true, CloudRuntime: true},
		{},
	} {
		backends, err := SelectBackends(env, cfg)
		if err != nil {
			t.Fatalf("SelectBackends failed: %v", err)
		}
		if _, ok := backends.Store.(*MemoryStore); !ok {
			t.Errorf("env %+v: expected *MemoryStore, got %T", env, backends.Store)
		}
		if _, ok := backends.BlobStore.(*MemoryBlobStore); !ok {
			t.Errorf("env %+v: expected *MemoryBlobStore, got %T", env, backends.BlobStore)
		}
	}
}

func TestSelectBackendsEmulator(t *testing.T) {
	cfg := DefaultConfig()
	env := Environment{UseEmulator: true, ForceMock: true}

	backends, err := SelectBackends(env, cfg)
	if err != nil {
		t.Fatalf("SelectBackends failed: %v", err)
	}
	if _, ok := backends.Store.(*DynamoDBStore); !ok {
		t.Errorf("expected *DynamoDBStore against the emulator, got %T", backends.Store)
	}
	if _, ok := backends.BlobStore.(*S3BlobStore); !ok {
		t.Errorf("expected *S3BlobStore against the emulator, got %T", backends.BlobStore)
	}
}

func TestSelectBackendsRemote(t *testing.T) {
	cfg := DefaultConfig()
	env := Environment{CloudRuntime: true, Region: "us-west-2"}

	backends, err := SelectBackends(env, cfg)
	if err != nil {
		t.Fatalf("SelectBackends failed: %v", err)
	}
	if _, ok := backends.Store.(*DynamoDBStore); !ok {
		t.Errorf("expected *DynamoDBStore, got %T", backends.Store)
	}
	if _, ok := backends.BlobStore.(*S3BlobStore); !ok {
		t.Errorf("expected *S3BlobStore, got %T", backends.BlobStore)
	}
}

func TestSelectBackendsSeedsSimulators(t *testing.T) {
	cfg := DefaultConfig()
	backends, err := SelectBackends(Environment{ForceMock: true}, cfg)
	if err != nil {
		t.Fatalf("SelectBackends failed: %v", err)
	}

	store := backends.Store.(*MemoryStore)
	rec, err := store.Get(context.Background(), "user_1")
	if err != nil || rec == nil {
		t.Fatalf("expected seeded user_1, got %v, %v", rec, err)
	}
}

func TestLoadEnvironmentSignals(t *testing.T) {
	t.Setenv("AWS_EXECUTION_ENV", "AWS_Lambda_go1.x")
	t.Setenv("APP_ENV", "test")
	t.Setenv("USE_MOCK_AWS", "true")
	t.Setenv("USE_LOCALSTACK", "true")
	t.Setenv("AWS_REGION", "eu-west-1")

	env := LoadEnvironment()
	if !env.CloudRuntime || !env.TestMode || !env.ForceMock || !env.UseEmulator {
		t.Errorf("signals not picked up: %+v", env)
	}
	if env.Region != "eu-west-1" {
		t.Errorf("expected eu-west-1, got %s", env.Region)
	}
}

package config

import (
	"testing"
)

func TestWithPort(t *testing.T) {
	cfg, err := Load(WithPort("9090"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got: %s", cfg.Port)
	}
}

func TestWithPortEmpty(t *testing.T) {
	_, err := Load(WithPort(""))
	if err == nil {
		t.Error("expected error for empty port, got nil")
	}
}

func TestWithEnvironment(t *testing.T) {
	cfg, err := Load(WithEnvironment("production"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("expected environment production, got: %s", cfg.Environment)
	}
}

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name      string
		dbType    string
		url       string
		wantError bool
	}{
		{"memory", "memory", "", false},
		{"postgres with url", "postgres", "postgres://localhost/db", false},
		{"postgres without url", "postgres", "", true},
		{"mysql with url", "mysql", "mysql://localhost/db", false},
		{"badger with url", "badger", "badger:///tmp/images", false},
		{"badger without url", "badger", "", true},
		{"unknown type", "sqlite", "file.db", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(WithDatabase(tt.dbType, tt.url))
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseType != tt.dbType {
				t.Errorf("expected database type %s, got %s", tt.dbType, cfg.DatabaseType)
			}
		})
	}
}

func TestWithStorage(t *testing.T) {
	cfg, err := Load(WithFilesystemStorage("/tmp/uploads"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Type != StorageFS {
		t.Errorf("expected fs storage, got %s", cfg.Storage.Type)
	}

	if _, err := Load(WithFilesystemStorage("")); err == nil {
		t.Error("expected error for empty base dir")
	}

	cfg, err = Load(WithS3Storage("images", ""), WithS3Endpoint("http://localhost:9000", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if getString(cfg.Storage.Config, "region", "") != "us-east-1" {
		t.Errorf("expected default region")
	}
	if !getBool(cfg.Storage.Config, "use_path_style", false) {
		t.Errorf("expected path style")
	}

	if _, err := Load(WithS3Endpoint("http://localhost:9000", true)); err == nil {
		t.Error("expected error setting endpoint without s3 storage")
	}
}

func TestWithKeyStrategy(t *testing.T) {
	if _, err := Load(WithKeyStrategy("hash")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(WithKeyStrategy("uuid")); err == nil {
		t.Error("expected error for unknown key strategy")
	}
}

func TestWithUploadLimits(t *testing.T) {
	cfg, err := Load(WithUploadRate(3, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UploadBurst != 1 {
		t.Errorf("expected burst to default to 1, got %d", cfg.UploadBurst)
	}

	if _, err := Load(WithUploadRate(-1, 1)); err == nil {
		t.Error("expected error for negative rate")
	}
	if _, err := Load(WithMaxUploadBytes(0)); err == nil {
		t.Error("expected error for zero upload limit")
	}
}

func TestNilOptionIgnored(t *testing.T) {
	if _, err := Load(nil, WithPort("8081")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

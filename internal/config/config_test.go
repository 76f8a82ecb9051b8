package config

import (
	"os"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "defaults use the bolt store",
			env:  map[string]string{},
		},
		{
			name:    "postgres without DATABASE_URL",
			env:     map[string]string{"STORE_DRIVER": "postgres"},
			wantErr: "DATABASE_URL is required for the postgres store",
		},
		{
			name: "postgres with DATABASE_URL",
			env: map[string]string{
				"STORE_DRIVER": "postgres",
				"DATABASE_URL": "postgres://localhost/db",
			},
		},
		{
			name:    "unknown store driver",
			env:     map[string]string{"STORE_DRIVER": "redis"},
			wantErr: `STORE_DRIVER must be "bolt" or "postgres"`,
		},
		{
			name:    "non-numeric PAGE_SIZE",
			env:     map[string]string{"PAGE_SIZE": "dozen"},
			wantErr: "PAGE_SIZE must be a positive integer",
		},
		{
			name:    "zero PAGE_SIZE",
			env:     map[string]string{"PAGE_SIZE": "0"},
			wantErr: "PAGE_SIZE must be a positive integer",
		},
		{
			name: "custom HTTP_ADDR and PAGE_SIZE",
			env: map[string]string{
				"HTTP_ADDR": ":9090",
				"PAGE_SIZE": "24",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadCatalog()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if err.Error() != tt.wantErr {
					t.Fatalf("want error %q, got %q", tt.wantErr, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if driver, ok := tt.env["STORE_DRIVER"]; ok && cfg.StoreDriver != driver {
				t.Fatalf("want StoreDriver %q, got %q", driver, cfg.StoreDriver)
			}
			if _, ok := tt.env["STORE_DRIVER"]; !ok && cfg.StoreDriver != StoreDriverBolt {
				t.Fatalf("want default StoreDriver %q, got %q", StoreDriverBolt, cfg.StoreDriver)
			}
			if addr, ok := tt.env["HTTP_ADDR"]; ok && cfg.HTTPAddr != addr {
				t.Fatalf("want HTTPAddr %q, got %q", addr, cfg.HTTPAddr)
			}
			if _, ok := tt.env["HTTP_ADDR"]; !ok && cfg.HTTPAddr != defaultHTTPAddr {
				t.Fatalf("want default HTTPAddr %q, got %q", defaultHTTPAddr, cfg.HTTPAddr)
			}
			if _, ok := tt.env["PAGE_SIZE"]; !ok && cfg.PageSize != defaultPageSize {
				t.Fatalf("want default PageSize %d, got %d", defaultPageSize, cfg.PageSize)
			}
			if tt.env["PAGE_SIZE"] == "24" && cfg.PageSize != 24 {
				t.Fatalf("want PageSize 24, got %d", cfg.PageSize)
			}
			if cfg.StorePath != defaultStorePath {
				t.Fatalf("want StorePath %q, got %q", defaultStorePath, cfg.StorePath)
			}
			if cfg.RemoteAPIURL != defaultRemoteAPIURL {
				t.Fatalf("want RemoteAPIURL %q, got %q", defaultRemoteAPIURL, cfg.RemoteAPIURL)
			}
			if cfg.ShutdownTimeout != defaultShutdownTimeout {
				t.Fatalf("want ShutdownTimeout %v, got %v", defaultShutdownTimeout, cfg.ShutdownTimeout)
			}
		})
	}
}

func TestLoadNotifications(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing RABBITMQ_URL",
			env:     map[string]string{},
			wantErr: "RABBITMQ_URL is required",
		},
		{
			name: "valid config",
			env:  map[string]string{"RABBITMQ_URL": "amqp://localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadNotifications()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if err.Error() != tt.wantErr {
					t.Fatalf("want error %q, got %q", tt.wantErr, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.RabbitMQURL != tt.env["RABBITMQ_URL"] {
				t.Fatalf("want RabbitMQURL %q, got %q", tt.env["RABBITMQ_URL"], cfg.RabbitMQURL)
			}
			if cfg.ShutdownTimeout != defaultShutdownTimeout {
				t.Fatalf("want ShutdownTimeout %v, got %v", defaultShutdownTimeout, cfg.ShutdownTimeout)
			}
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_ADDR", "STORE_DRIVER", "STORE_PATH", "DATABASE_URL",
		"MIGRATIONS_PATH", "REMOTE_API_URL", "RABBITMQ_URL", "PAGE_SIZE",
	}
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			t.Setenv(key, val)
		}
		os.Unsetenv(key)
	}
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"defaults", Config{}},
		{"json format", Config{Level: "debug", Format: "json", Output: "stdout"}},
		{"text format", Config{Level: "warn", Format: "text", Output: "stderr"}},
		{"unknown level falls back", Config{Level: "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "faultline.log")

	l, err := New(Config{Output: path, Component: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("hello", "key", "value")
}

func TestWithComponent(t *testing.T) {
	l, err := New(Config{Component: "aggregate"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	child := l.WithComponent("incident")
	if child.component != "incident" {
		t.Errorf("component = %q, want %q", child.component, "incident")
	}
	if child == l {
		t.Error("WithComponent() should return a new logger")
	}
}

func TestWithReportID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faultline.log")

	l, err := New(Config{Output: path, Format: "json", Component: "aggregate"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.WithReportID("r-123").Info("cycle started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log output: %v", err)
	}
	if !strings.Contains(string(data), `"report_id":"r-123"`) {
		t.Errorf("log output missing report_id attribute: %s", data)
	}
}

func TestGlobal_Uninitialized(t *testing.T) {
	// Global must never return nil, even before Initialize.
	if Global() == nil {
		t.Fatal("Global() returned nil")
	}
}

package sysprobe

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSample(t *testing.T) {
	dir := t.TempDir()

	sampler := &ProcSampler{
		loadavgPath: writeFile(t, dir, "loadavg", "0.52 1.25 0.59 1/467 2041\n"),
		meminfoPath: writeFile(t, dir, "meminfo", "MemTotal:       16337176 kB\nMemFree:         1060104 kB\nMemAvailable:    8192000 kB\n"),
	}

	s, err := sampler.Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if s.Load5 != 1.25 {
		t.Errorf("Load5 = %v, want 1.25", s.Load5)
	}
	// (16337176 - 8192000) / 1024 = 7954 MB
	if s.UsedMemMB != 7954 {
		t.Errorf("UsedMemMB = %d, want 7954", s.UsedMemMB)
	}
}

func TestSample_MalformedLoadavg(t *testing.T) {
	dir := t.TempDir()

	sampler := &ProcSampler{
		loadavgPath: writeFile(t, dir, "loadavg", "garbage"),
		meminfoPath: writeFile(t, dir, "meminfo", "MemTotal: 1 kB\nMemAvailable: 1 kB\n"),
	}

	if _, err := sampler.Sample(); err == nil {
		t.Error("Sample() should fail on malformed loadavg")
	}
}

func TestSample_MalformedMeminfo(t *testing.T) {
	dir := t.TempDir()
	loadavg := writeFile(t, dir, "loadavg", "0.52 1.25 0.59 1/467 2041\n")

	tests := []struct {
		name    string
		meminfo string
	}{
		{"garbage total", "MemTotal: garbage kB\nMemAvailable: 8192000 kB\n"},
		{"garbage available", "MemTotal: 16337176 kB\nMemAvailable: garbage kB\n"},
		{"missing keys", "SwapTotal: 0 kB\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := &ProcSampler{
				loadavgPath: loadavg,
				meminfoPath: writeFile(t, dir, "meminfo_"+tt.name, tt.meminfo),
			}
			// A broken reading must surface, not report 0 MB used.
			if _, err := sampler.Sample(); err == nil {
				t.Error("Sample() should fail on malformed meminfo")
			}
		})
	}
}

func TestSample_MissingFiles(t *testing.T) {
	sampler := &ProcSampler{
		loadavgPath: filepath.Join(t.TempDir(), "absent"),
		meminfoPath: filepath.Join(t.TempDir(), "absent"),
	}

	if _, err := sampler.Sample(); err == nil {
		t.Error("Sample() should fail when /proc files are unreadable")
	}
}

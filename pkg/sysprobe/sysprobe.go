// Package sysprobe samples host resource state for fault context fields.
package sysprobe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sample is a point-in-time host resource reading.
type Sample struct {
	// Load5 is the 5-minute load average.
	Load5 float64

	// UsedMemMB is used system memory in megabytes (total minus available).
	UsedMemMB uint64
}

// ProcSampler reads samples from the Linux /proc filesystem.
type ProcSampler struct {
	loadavgPath string
	meminfoPath string
}

// NewProcSampler creates a sampler reading the standard /proc paths.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{
		loadavgPath: "/proc/loadavg",
		meminfoPath: "/proc/meminfo",
	}
}

// Sample reads the current load average and memory usage.
func (p *ProcSampler) Sample() (Sample, error) {
	var s Sample

	load5, err := p.readLoad5()
	if err != nil {
		return s, fmt.Errorf("read %s: %w", p.loadavgPath, err)
	}
	s.Load5 = load5

	usedMB, err := p.readUsedMemMB()
	if err != nil {
		return s, fmt.Errorf("read %s: %w", p.meminfoPath, err)
	}
	s.UsedMemMB = usedMB

	return s, nil
}

func (p *ProcSampler) readLoad5() (float64, error) {
	data, err := os.ReadFile(p.loadavgPath)
	if err != nil {
		return 0, err
	}

	// Format: "0.52 0.58 0.59 1/467 2041"
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected loadavg format: %q", string(data))
	}

	return strconv.ParseFloat(fields[1], 64)
}

func (p *ProcSampler) readUsedMemMB() (uint64, error) {
	kv, err := parseKeyValueFile(p.meminfoPath)
	if err != nil {
		return 0, err
	}

	total, err := parseKB(kv["MemTotal"])
	if err != nil {
		return 0, fmt.Errorf("MemTotal: %w", err)
	}
	available, err := parseKB(kv["MemAvailable"])
	if err != nil {
		return 0, fmt.Errorf("MemAvailable: %w", err)
	}
	if total < available {
		return 0, fmt.Errorf("meminfo total %d below available %d", total, available)
	}

	return (total - available) / 1024, nil
}

// parseKeyValueFile parses "Key: value kB" lines into a map
func parseKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		kv[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return kv, scanner.Err()
}

// parseKB parses a meminfo value like "16337176 kB" into kilobytes
func parseKB(value string) (uint64, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty meminfo value")
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed meminfo value %q: %w", value, err)
	}
	return n, nil
}

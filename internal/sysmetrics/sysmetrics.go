// Package sysmetrics samples host CPU, memory, and disk utilization for
// the periodic system_health job. It reads /proc directly on Linux and
// degrades to zeroed metrics elsewhere.
package sysmetrics

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Thresholds are the alert trigger points for the system_health job.
type Thresholds struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// DefaultThresholds matches the seeded system_health job: CPU>80, mem>85, disk>90.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 80, MemPercent: 85, DiskPercent: 90}
}

// Sample is one point-in-time reading.
type Sample struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
	DBSizeMB    float64
}

// Alert names a threshold breach.
type Alert struct {
	Metric  string
	Percent float64
	Limit   float64
}

// Collect samples current utilization for dbPath's volume.
func Collect(dbPath string) (Sample, error) {
	cpu, err := cpuPercent()
	if err != nil {
		cpu = 0
	}
	mem, err := memPercent()
	if err != nil {
		mem = 0
	}
	disk, err := diskPercent(dbPath)
	if err != nil {
		disk = 0
	}

	var dbSizeMB float64
	if info, err := os.Stat(dbPath); err == nil {
		dbSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	return Sample{CPUPercent: cpu, MemPercent: mem, DiskPercent: disk, DBSizeMB: dbSizeMB}, nil
}

// CheckThresholds returns alerts for any metric at or above its limit.
func CheckThresholds(s Sample, t Thresholds) []Alert {
	var alerts []Alert
	if s.CPUPercent >= t.CPUPercent {
		alerts = append(alerts, Alert{Metric: "cpu", Percent: s.CPUPercent, Limit: t.CPUPercent})
	}
	if s.MemPercent >= t.MemPercent {
		alerts = append(alerts, Alert{Metric: "memory", Percent: s.MemPercent, Limit: t.MemPercent})
	}
	if s.DiskPercent >= t.DiskPercent {
		alerts = append(alerts, Alert{Metric: "disk", Percent: s.DiskPercent, Limit: t.DiskPercent})
	}
	return alerts
}

// cpuPercent samples /proc/stat twice across a short interval and
// computes the fraction of non-idle ticks.
func cpuPercent() (float64, error) {
	before, err := readCPUTicks()
	if err != nil {
		return 0, err
	}
	time.Sleep(200 * time.Millisecond)
	after, err := readCPUTicks()
	if err != nil {
		return 0, err
	}

	totalDelta := after.total - before.total
	idleDelta := after.idle - before.idle
	if totalDelta <= 0 {
		return 0, nil
	}
	return (1 - float64(idleDelta)/float64(totalDelta)) * 100, nil
}

type cpuTicks struct {
	total int64
	idle  int64
}

func readCPUTicks() (cpuTicks, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTicks{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuTicks{}, scanner.Err()
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTicks{}, nil
	}

	var total int64
	var idle int64
	for i, f := range fields[1:] {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle column
			idle = v
		}
	}
	return cpuTicks{total: total, idle: idle}, nil
}

func memPercent() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var totalKB, availableKB float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKB = parseMeminfoValue(line)
		}
	}
	if totalKB <= 0 {
		return 0, nil
	}
	return (1 - availableKB/totalKB) * 100, nil
}

func parseMeminfoValue(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func diskPercent(path string) (float64, error) {
	dir := path
	if dir == "" || dir == ":memory:" {
		dir = "."
	} else {
		dir = dirOf(dir)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	total := float64(stat.Blocks) * float64(stat.Bsize)
	free := float64(stat.Bfree) * float64(stat.Bsize)
	if total <= 0 {
		return 0, nil
	}
	return (1 - free/total) * 100, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}

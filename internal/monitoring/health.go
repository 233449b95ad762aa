package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check response
type HealthCheck struct {
	Status          HealthStatus     `json:"status"`
	Version         string           `json:"version"`
	Uptime          int64            `json:"uptime"`
	UptimeHuman     string           `json:"uptime_human"`
	LedgerRecords   int              `json:"ledger_records"`
	ActiveDownloads int              `json:"active_downloads"`
	MemoryUsageMB   uint64           `json:"memory_usage_mb"`
	DatabaseStatus  string           `json:"database_status"`
	Checks          map[string]Check `json:"checks"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	version        string
	startTime      time.Time
	db             *sql.DB
	downloaderPath string
	baseFolder     string
	m3uFolder      string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, db *sql.DB, downloaderPath, baseFolder, m3uFolder string) *HealthChecker {
	return &HealthChecker{
		version:        version,
		startTime:      time.Now(),
		db:             db,
		downloaderPath: downloaderPath,
		baseFolder:     baseFolder,
		m3uFolder:      m3uFolder,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(ledgerRecords, activeDownloads int) *HealthCheck {
	checks := make(map[string]Check)
	overallStatus := HealthStatusHealthy

	// Check run history database connectivity
	dbCheck := h.checkDatabase()
	checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		overallStatus = HealthStatusUnhealthy
	}

	// Check the downloader binary
	dlCheck := h.checkDownloader()
	checks["downloader"] = dlCheck
	if dlCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if dlCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	// Check library and playlist folders
	libCheck := h.checkFolder(h.baseFolder, "Library folder")
	checks["library"] = libCheck
	if libCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if libCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	m3uCheck := h.checkFolder(h.m3uFolder, "Playlist folder")
	checks["playlists"] = m3uCheck
	if m3uCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if m3uCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	// Check memory usage
	memCheck := h.checkMemory()
	checks["memory"] = memCheck
	if memCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if memCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	uptime := time.Since(h.startTime)
	uptimeSeconds := int64(uptime.Seconds())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryMB := m.Alloc / 1024 / 1024

	dbStatus := "connected"
	if dbCheck.Status != "healthy" {
		dbStatus = "disconnected"
	}

	return &HealthCheck{
		Status:          overallStatus,
		Version:         h.version,
		Uptime:          uptimeSeconds,
		UptimeHuman:     formatDuration(uptime),
		LedgerRecords:   ledgerRecords,
		ActiveDownloads: activeDownloads,
		MemoryUsageMB:   memoryMB,
		DatabaseStatus:  dbStatus,
		Checks:          checks,
		Timestamp:       time.Now(),
	}
}

// checkDatabase checks run history database connectivity
func (h *HealthChecker) checkDatabase() Check {
	if h.db == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database connection not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database ping failed: " + err.Error(),
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Database connection is healthy",
	}
}

// checkDownloader verifies the external downloader binary is present and runnable
func (h *HealthChecker) checkDownloader() Check {
	info, err := os.Stat(h.downloaderPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Status:  "unhealthy",
				Message: "Downloader binary not found at " + h.downloaderPath,
			}
		}
		return Check{
			Status:  "unhealthy",
			Message: "Cannot stat downloader binary: " + err.Error(),
		}
	}

	if info.IsDir() {
		return Check{
			Status:  "unhealthy",
			Message: "Downloader path is a directory",
		}
	}

	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return Check{
			Status:  "degraded",
			Message: "Downloader binary is not executable",
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Downloader binary is available",
	}
}

// checkFolder verifies a managed folder exists. Missing folders are only
// degraded since they are created on demand during a run.
func (h *HealthChecker) checkFolder(path, label string) Check {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Status:  "degraded",
				Message: label + " does not exist yet",
			}
		}
		return Check{
			Status:  "unhealthy",
			Message: "Cannot stat " + label + ": " + err.Error(),
		}
	}

	if !info.IsDir() {
		return Check{
			Status:  "unhealthy",
			Message: label + " is not a directory",
		}
	}

	return Check{
		Status:  "healthy",
		Message: label + " is available",
	}
}

// checkMemory checks memory usage
func (h *HealthChecker) checkMemory() Check {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryMB := m.Alloc / 1024 / 1024

	// Thresholds
	const (
		warningThresholdMB  = 500  // 500 MB
		criticalThresholdMB = 1000 // 1 GB
	)

	if memoryMB > criticalThresholdMB {
		return Check{
			Status:  "unhealthy",
			Message: "Memory usage is critically high",
		}
	}

	if memoryMB > warningThresholdMB {
		return Check{
			Status:  "degraded",
			Message: "Memory usage is elevated",
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Memory usage is normal",
	}
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

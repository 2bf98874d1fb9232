package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aegis/internal/domain"
)

// Config holds application configuration
type Config struct {
	// Loop settings
	ScanInterval       time.Duration
	SensorWaitInterval time.Duration

	// Performance settings
	WorkerPoolSize     int
	TaskQueueSize      int
	EventBufferSize    int
	NotificationBuffer int
	HistoryCapacity    int
	MaxRegionBytes     int

	// Storage layout
	DataRoot       string
	QuarantineDir  string
	LogDir         string
	DBPath         string
	SignaturesFile string

	// Sweep roots
	TempRoot      string
	AppDataRoot   string
	DocumentsRoot string
	WatchPaths    []string

	// Collaborators; empty disables them
	NATSURL            string
	NATSEventSubject   string
	NATSVerdictSubject string
	HTTPAddr           string
	LogLevel           string

	Settings domain.Settings
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	home, _ := os.UserHomeDir()
	userConfig, err := os.UserConfigDir()
	if err != nil {
		userConfig = home
	}

	dataRoot := getEnv("AEGIS_DATA_ROOT", filepath.Join(userConfig, "Aegis"))
	appData := getEnv("APPDATA", userConfig)
	temp := getEnv("AEGIS_TEMP_ROOT", os.TempDir())
	documents := getEnv("AEGIS_DOCUMENTS_ROOT", filepath.Join(home, "Documents"))

	defaults := domain.DefaultSettings()

	cfg := &Config{
		ScanInterval:       getDurationEnv("AEGIS_SCAN_INTERVAL", time.Hour),
		SensorWaitInterval: getDurationEnv("AEGIS_SENSOR_WAIT", 5*time.Second),

		WorkerPoolSize:     getIntEnv("AEGIS_WORKER_POOL_SIZE", 4),
		TaskQueueSize:      getIntEnv("AEGIS_TASK_QUEUE_SIZE", 16),
		EventBufferSize:    getIntEnv("AEGIS_EVENT_BUFFER_SIZE", 1000),
		NotificationBuffer: getIntEnv("AEGIS_NOTIFICATION_BUFFER", 64),
		HistoryCapacity:    getIntEnv("AEGIS_HISTORY_CAPACITY", domain.DefaultHistoryCapacity),
		MaxRegionBytes:     getIntEnv("AEGIS_MAX_REGION_BYTES", 4<<20),

		DataRoot:       dataRoot,
		QuarantineDir:  getEnv("AEGIS_QUARANTINE_DIR", filepath.Join(dataRoot, "Quarantine")),
		LogDir:         getEnv("AEGIS_LOG_DIR", filepath.Join(dataRoot, "logs")),
		DBPath:         getEnv("AEGIS_DB_PATH", filepath.Join(dataRoot, "aegis.db")),
		SignaturesFile: getEnv("AEGIS_SIGNATURES_FILE", filepath.Join(dataRoot, "signatures.yaml")),

		TempRoot:      temp,
		AppDataRoot:   appData,
		DocumentsRoot: documents,
		WatchPaths:    getListEnv("AEGIS_WATCH_PATHS", []string{temp, appData, documents}),

		NATSURL:            getEnv("AEGIS_NATS_URL", ""),
		NATSEventSubject:   getEnv("AEGIS_NATS_EVENT_SUBJECT", "aegis.events"),
		NATSVerdictSubject: getEnv("AEGIS_NATS_VERDICT_SUBJECT", "aegis.verdicts"),
		HTTPAddr:           getEnv("AEGIS_HTTP_ADDR", ""),
		LogLevel:           getEnv("AEGIS_LOG_LEVEL", "info"),

		Settings: domain.Settings{
			RealtimeProtection:   getBoolEnv("AEGIS_REALTIME", defaults.RealtimeProtection),
			AutoQuarantine:       getBoolEnv("AEGIS_AUTO_QUARANTINE", defaults.AutoQuarantine),
			BehaviorMonitoring:   getBoolEnv("AEGIS_BEHAVIOR_MONITORING", defaults.BehaviorMonitoring),
			RansomwareProtection: getBoolEnv("AEGIS_RANSOMWARE_PROTECTION", defaults.RansomwareProtection),
			MemoryScanning:       getBoolEnv("AEGIS_MEMORY_SCANNING", defaults.MemoryScanning),
		},
	}

	return cfg
}

// Validate rejects values the loops and pools cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("scan interval must be positive, got %v", c.ScanInterval))
	}
	if c.SensorWaitInterval <= 0 {
		errs = append(errs, fmt.Errorf("sensor wait interval must be positive, got %v", c.SensorWaitInterval))
	}
	if c.WorkerPoolSize < 1 {
		errs = append(errs, fmt.Errorf("worker pool size must be at least 1, got %d", c.WorkerPoolSize))
	}
	if c.TaskQueueSize < 1 {
		errs = append(errs, fmt.Errorf("task queue size must be at least 1, got %d", c.TaskQueueSize))
	}
	if c.EventBufferSize < 1 {
		errs = append(errs, fmt.Errorf("event buffer size must be at least 1, got %d", c.EventBufferSize))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("history capacity must be at least 1, got %d", c.HistoryCapacity))
	}
	if c.MaxRegionBytes < 32 {
		errs = append(errs, fmt.Errorf("max region bytes must be at least 32, got %d", c.MaxRegionBytes))
	}
	if c.DataRoot == "" {
		errs = append(errs, errors.New("data root is empty"))
	}
	if c.QuarantineDir == "" {
		errs = append(errs, errors.New("quarantine directory is empty"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv splits on the OS path-list separator
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, string(os.PathListSeparator)) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

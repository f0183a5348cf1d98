package utils

// Transfer thresholds (binary units)
const (
	LargeFileThresholdBytes = 100 * 1024 * 1024 // 100 MiB
	DefaultChunkSizeMB      = 20
	PartialSuffix           = ".partial"
	CheckpointSuffix        = ".checkpoint"
)

// Concurrency defaults
const (
	DefaultThrottleLimit = 10
	MinThrottleWidth     = 1
	ThrottleIncrease     = 2
	DefaultBatchSize     = 15
)

// Adaptive throttle thresholds
const (
	HighCPUPercent = 80.0
	LowCPUPercent  = 40.0
	LowMemoryMB    = 1000
	HighMemoryMB   = 4000
)

// Rate limiting
const (
	DefaultMaxRequests       = 600
	DefaultRateWindowSeconds = 60
)

// Retry configuration
const (
	DefaultMaxRetries    = 3
	DefaultRetryDelayMs  = 1000
	MaxRetryDelaySeconds = 60
	MaxRetryJitterMs     = 1000
)

// Request timeouts
const (
	DefaultRequestTimeoutSeconds = 30
	DefaultContentTimeoutSeconds = 300
)

// Graph API
const (
	GraphAPIBase = "https://graph.microsoft.com/v1.0"
	RootFolderID = "root"
)

// Schema version
const SchemaVersion = "1.0"

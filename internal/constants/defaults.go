package constants

// Server defaults
const (
	DefaultServerPort      = 8082
	DefaultReadTimeoutSec  = 15
	DefaultWriteTimeoutSec = 15
	DefaultIdleTimeoutSec  = 60
	DefaultShutdownSec     = 10
)

// Transport defaults
const (
	DefaultTransportTimeoutSec = 30
	DefaultSessionName         = "default"
)

// Reconnect backoff defaults. The naive behavior upstream of this gateway is
// to retry immediately forever; the bounded schedule below replaces that.
const (
	DefaultReconnectInitialMs   = 1000
	DefaultReconnectMaxMs       = 60000
	DefaultReconnectMultiplier  = 2.0
	DefaultDatabaseRetryAttempt = 5
	DefaultRetryBackoffMs       = 100
	DefaultMaxBackoffMs         = 5000
)

// Media defaults
const (
	DefaultMediaFetchTimeoutSec = 30
	DefaultMediaMaxSizeMB       = 100
)

// Directory defaults
const (
	DefaultTablePrefix  = "wa"
	DefaultMessageLimit = 100
	DefaultHistoryLimit = 500
	DefaultChannelLimit = 200
)

// Crawler defaults
const (
	DefaultCrawlerTimeoutSec = 10
)

package models

// Config is the root configuration for the gateway, loaded from JSON with
// environment overrides applied afterwards.
type Config struct {
	Transport TransportConfig `json:"transport"`
	Database  DatabaseConfig  `json:"database"`
	Media     MediaConfig     `json:"media"`
	Crawler   CrawlerConfig   `json:"crawler"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Tracing   TracingConfig   `json:"tracing"`
	Server    ServerConfig    `json:"server"`
	LogLevel  string          `json:"logLevel"`
}

// TransportConfig points at the external protocol endpoint. The wire format
// behind it is opaque; the gateway only uses its connect/send/receive
// primitives.
type TransportConfig struct {
	BaseURL     string `json:"baseUrl"`
	SessionName string `json:"sessionName"`
	TimeoutSec  int    `json:"timeoutSec"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
	// TablePrefix namespaces every table so multiple tenants can share one
	// database file.
	TablePrefix string `json:"tablePrefix"`
}

type MediaConfig struct {
	StorageDir      string `json:"storageDir"`
	FetchTimeoutSec int    `json:"fetchTimeoutSec"`
	MaxSizeMB       int    `json:"maxSizeMB"`
}

// CrawlerConfig configures the fire-and-forget link push to the external
// crawler/indexer. Delivery is best effort and never blocks ingestion.
type CrawlerConfig struct {
	URL        string `json:"url"`
	TimeoutSec int    `json:"timeoutSec"`
}

// ReconnectConfig bounds the exponential backoff used between reconnect
// attempts after a recoverable close.
type ReconnectConfig struct {
	InitialBackoffMs int     `json:"initialBackoffMs"`
	MaxBackoffMs     int     `json:"maxBackoffMs"`
	Multiplier       float64 `json:"multiplier"`
}

type TracingConfig struct {
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"useStdout"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

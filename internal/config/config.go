package config

import "time"

// BridgeConfig is the root configuration for one bridge process. A process
// serves exactly one account/feed pairing.
type BridgeConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Stream   StreamConfig   `yaml:"stream"`
	Feed     FeedConfig     `yaml:"feed"`
	Account  AccountConfig  `yaml:"account"`
	Broker   BrokerConfig   `yaml:"broker"`
	Journal  JournalConfig  `yaml:"journal"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangeConfig holds the REST API settings.
type ExchangeConfig struct {
	RestURL      string        `yaml:"rest_url"`
	Identifier   string        `yaml:"identifier"` // account login
	Password     string        `yaml:"password"`
	APIKey       string        `yaml:"api_key"`
	AccountID    string        `yaml:"account_id"` // sub-account to trade on
	Environment  string        `yaml:"environment"` // "demo" or "live"
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StreamConfig holds the streaming connection and keepalive settings.
type StreamConfig struct {
	URL          string        `yaml:"url"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`

	// Application-level keepalive toward the streaming endpoint. The short
	// interval applies inside the illiquid session window, when the venue
	// stops quoting and idle-timeouts the socket.
	PingInterval         time.Duration `yaml:"ping_interval"`
	IlliquidPingInterval time.Duration `yaml:"illiquid_ping_interval"`
	IlliquidWindowStart  string        `yaml:"illiquid_window_start"` // "HH:MM" UTC
	IlliquidWindowEnd    string        `yaml:"illiquid_window_end"`   // "HH:MM" UTC

	// REST-side keepalive: ping cadence and session-rebuild backoff.
	RestPingInterval time.Duration `yaml:"rest_ping_interval"`
	RebuildBackoff   time.Duration `yaml:"rebuild_backoff"`
}

// TimeframeConfig selects the bar resolution.
type TimeframeConfig struct {
	Unit     string `yaml:"unit"` // "second", "minute", "hour", "day", "week"
	Multiple int    `yaml:"multiple"`
}

// ReconnectConfig controls live-feed reconnection.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"` // -1 = retry forever
	CoolDown    time.Duration `yaml:"cool_down"`
}

// BackfillConfig controls historical backfill behavior.
type BackfillConfig struct {
	OnStart     bool `yaml:"on_start"`
	OnReconnect bool `yaml:"on_reconnect"`
}

// FeedConfig holds the data feed settings.
type FeedConfig struct {
	Epic       string          `yaml:"epic"`
	Timeframe  TimeframeConfig `yaml:"timeframe"`
	Historical bool            `yaml:"historical"` // historical-only, then stop
	From       time.Time       `yaml:"from"`
	To         time.Time       `yaml:"to"`
	UseAsk     bool            `yaml:"use_ask"`
	QCheck     time.Duration   `yaml:"qcheck"` // bounded wait per live poll
	PageSize   int             `yaml:"page_size"`
	Reconnect  ReconnectConfig `yaml:"reconnect"`
	Backfill   BackfillConfig  `yaml:"backfill"`
}

// AccountConfig holds account refresh settings.
type AccountConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// BrokerConfig holds broker facade settings.
type BrokerConfig struct {
	NotificationBuffer int           `yaml:"notification_buffer"`
	MonitorIdle        time.Duration `yaml:"monitor_idle"`
	MonitorActive      time.Duration `yaml:"monitor_active"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds the optional bar/notification journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

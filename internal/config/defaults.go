package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDemoRestURL   = "https://demo-api-capital.backend-capital.com"
	DefaultLiveRestURL   = "https://api-capital.backend-capital.com"
	DefaultStreamURL     = "wss://api-streaming-capital.backend-capital.com/connect"
	DefaultAPITimeout    = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBackoff  = time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultStreamBuffer  = 1000
	DefaultPingInterval  = 5 * time.Minute
	DefaultIlliquidPing  = 45 * time.Second
	DefaultIlliquidStart = "20:45"
	DefaultIlliquidEnd   = "22:01"
	DefaultRestPing      = 3 * time.Minute
	DefaultRebuild       = 30 * time.Second

	DefaultQCheck        = 500 * time.Millisecond
	DefaultPageSize      = 100
	MaxPageSize          = 1000
	DefaultCoolDown      = 5 * time.Second
	DefaultMaxAttempts   = -1 // forever
	DefaultRefresh       = 10 * time.Second
	DefaultNotifBuffer   = 1024
	DefaultMonitorIdle   = 3 * time.Minute
	DefaultMonitorActive = 30 * time.Second

	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultBatchSize     = 500
	DefaultFlushInterval = time.Second
	DefaultBufferSize    = 10000
)

func (c *BridgeConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.Environment == "" {
		c.Exchange.Environment = "demo"
	}
	if c.Exchange.RestURL == "" {
		if c.Exchange.Environment == "live" {
			c.Exchange.RestURL = DefaultLiveRestURL
		} else {
			c.Exchange.RestURL = DefaultDemoRestURL
		}
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultAPITimeout
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = DefaultMaxRetries
	}
	if c.Exchange.RetryBackoff == 0 {
		c.Exchange.RetryBackoff = DefaultRetryBackoff
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.IlliquidPingInterval == 0 {
		c.Stream.IlliquidPingInterval = DefaultIlliquidPing
	}
	if c.Stream.IlliquidWindowStart == "" {
		c.Stream.IlliquidWindowStart = DefaultIlliquidStart
	}
	if c.Stream.IlliquidWindowEnd == "" {
		c.Stream.IlliquidWindowEnd = DefaultIlliquidEnd
	}
	if c.Stream.RestPingInterval == 0 {
		c.Stream.RestPingInterval = DefaultRestPing
	}
	if c.Stream.RebuildBackoff == 0 {
		c.Stream.RebuildBackoff = DefaultRebuild
	}

	// Feed defaults
	if c.Feed.Timeframe.Multiple == 0 {
		c.Feed.Timeframe.Multiple = 1
	}
	if c.Feed.Timeframe.Unit == "" {
		c.Feed.Timeframe.Unit = "minute"
	}
	if c.Feed.QCheck == 0 {
		c.Feed.QCheck = DefaultQCheck
	}
	if c.Feed.PageSize == 0 {
		c.Feed.PageSize = DefaultPageSize
	}
	if c.Feed.Reconnect.CoolDown == 0 {
		c.Feed.Reconnect.CoolDown = DefaultCoolDown
	}
	if c.Feed.Reconnect.MaxAttempts == 0 {
		c.Feed.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	// Account defaults
	if c.Account.RefreshInterval == 0 {
		c.Account.RefreshInterval = DefaultRefresh
	}

	// Broker defaults
	if c.Broker.NotificationBuffer == 0 {
		c.Broker.NotificationBuffer = DefaultNotifBuffer
	}
	if c.Broker.MonitorIdle == 0 {
		c.Broker.MonitorIdle = DefaultMonitorIdle
	}
	if c.Broker.MonitorActive == 0 {
		c.Broker.MonitorActive = DefaultMonitorActive
	}

	// Journal defaults
	if c.Journal.Enabled {
		applyDBDefaults(&c.Journal.Database)
		if c.Journal.BatchSize == 0 {
			c.Journal.BatchSize = DefaultBatchSize
		}
		if c.Journal.FlushInterval == 0 {
			c.Journal.FlushInterval = DefaultFlushInterval
		}
		if c.Journal.BufferSize == 0 {
			c.Journal.BufferSize = DefaultBufferSize
		}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

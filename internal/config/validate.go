package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
// Timeframe support beyond unit names is checked at feed start, where an
// unsupported combination produces a terminal notification instead of a
// config error.
func (c *BridgeConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Exchange.Identifier == "" {
		return errors.New("exchange.identifier is required")
	}
	if c.Exchange.Password == "" {
		return errors.New("exchange.password is required")
	}
	if c.Exchange.APIKey == "" {
		return errors.New("exchange.api_key is required")
	}
	if c.Exchange.Environment != "demo" && c.Exchange.Environment != "live" {
		return fmt.Errorf("exchange.environment must be demo or live, got %q", c.Exchange.Environment)
	}

	if c.Feed.Epic == "" {
		return errors.New("feed.epic is required")
	}
	switch c.Feed.Timeframe.Unit {
	case "second", "minute", "hour", "day", "week":
	default:
		return fmt.Errorf("feed.timeframe.unit must be one of second|minute|hour|day|week, got %q", c.Feed.Timeframe.Unit)
	}
	if c.Feed.Timeframe.Multiple < 1 {
		return errors.New("feed.timeframe.multiple must be >= 1")
	}
	if c.Feed.PageSize < 1 || c.Feed.PageSize > MaxPageSize {
		return fmt.Errorf("feed.page_size must be between 1 and %d", MaxPageSize)
	}
	if c.Feed.Historical && c.Feed.From.IsZero() {
		return errors.New("feed.from is required in historical mode")
	}
	if !c.Feed.To.IsZero() && !c.Feed.From.IsZero() && c.Feed.To.Before(c.Feed.From) {
		return errors.New("feed.to must not precede feed.from")
	}
	if c.Feed.Reconnect.MaxAttempts < -1 {
		return errors.New("feed.reconnect.max_attempts must be >= -1")
	}

	if _, err := parseClock(c.Stream.IlliquidWindowStart); err != nil {
		return fmt.Errorf("stream.illiquid_window_start: %w", err)
	}
	if _, err := parseClock(c.Stream.IlliquidWindowEnd); err != nil {
		return fmt.Errorf("stream.illiquid_window_end: %w", err)
	}

	if c.Broker.NotificationBuffer < 1 {
		return errors.New("broker.notification_buffer must be >= 1")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// parseClock parses an "HH:MM" wall-clock string.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// IlliquidWindow returns the configured window as offsets from midnight UTC.
func (s StreamConfig) IlliquidWindow() (start, end time.Duration) {
	start, _ = parseClock(s.IlliquidWindowStart)
	end, _ = parseClock(s.IlliquidWindowEnd)
	return start, end
}

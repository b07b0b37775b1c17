package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if err := oneOf("server.transport", c.Server.Transport, "gorilla gobwas"); err != nil {
		return err
	}
	if c.Server.MaxMessageSize < 0 {
		return errors.New("server.max_message_size must be >= 0")
	}

	if err := oneOf("relay.admission_policy", c.Relay.AdmissionPolicy, "replace replace_notify reject"); err != nil {
		return err
	}
	if err := oneOf("relay.fanout", c.Relay.Fanout, "sequential parallel"); err != nil {
		return err
	}
	if c.Relay.FanoutConcurrency < 1 {
		return errors.New("relay.fanout_concurrency must be >= 1")
	}
	if c.Relay.SendTimeout < 0 {
		return errors.New("relay.send_timeout must be >= 0")
	}

	if !c.Heartbeat.Disabled {
		if c.Heartbeat.Interval <= 0 {
			return errors.New("heartbeat.interval must be > 0")
		}
		if c.Heartbeat.IdleTimeout < 0 {
			return errors.New("heartbeat.idle_timeout must be >= 0")
		}
		if c.Heartbeat.PingTimeout < 0 {
			return errors.New("heartbeat.ping_timeout must be >= 0")
		}
		if c.Heartbeat.Concurrency < 1 {
			return errors.New("heartbeat.concurrency must be >= 1")
		}
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if err := oneOf("log.level", c.Log.Level, "debug info warn error"); err != nil {
		return err
	}
	return oneOf("log.format", c.Log.Format, "text json")
}

func oneOf(field, value, allowed string) error {
	if err := validate.Var(value, "oneof="+allowed); err != nil {
		return fmt.Errorf("%s must be one of [%s], got %q", field, allowed, value)
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

package transfer

import "time"

// BackoffConfig shapes retry pacing for receiver connect and read attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config shapes one protocol engine.
type Config struct {
	// ServiceID names the advertised service; both ends must agree.
	ServiceID string

	// ParkTimeout bounds how long a once-connected session stays parked
	// after peer loss before it fails. Zero disables the bound.
	ParkTimeout time.Duration

	// EventBuffer sizes the application event channel. When the application
	// falls behind, further events are dropped with a warning.
	EventBuffer int

	// SendAcks makes the receiver write an ACK after each accumulated
	// chunk. The sender treats ACK purely as a resend trigger, so this is
	// off unless explicit pacing is wanted.
	SendAcks bool

	// MaxConnectAttempts bounds receiver connection attempts per session.
	MaxConnectAttempts int

	// MaxReadAttempts bounds retries of a failed metadata read.
	MaxReadAttempts int

	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ServiceID:          "wardlink.signover",
		ParkTimeout:        45 * time.Second,
		EventBuffer:        32,
		SendAcks:           false,
		MaxConnectAttempts: 5,
		MaxReadAttempts:    3,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       false,
		},
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ServiceID == "" {
		c.ServiceID = d.ServiceID
	}
	if c.ParkTimeout < 0 {
		c.ParkTimeout = d.ParkTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.MaxReadAttempts <= 0 {
		c.MaxReadAttempts = d.MaxReadAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

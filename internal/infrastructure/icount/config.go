package icount

import (
	"errors"
	"net/url"
	"time"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseSize = 10 << 20
)

// Config holds the connection settings for the iCount API.
type Config struct {
	// BaseURL is the API root, endpoints are appended as path segments
	BaseURL string
	// Timeout bounds a single HTTP exchange. Callers usually pass a
	// shorter per-call deadline through the context.
	Timeout time.Duration
	// MaxResponseSize caps how much of a response body is read
	MaxResponseSize int64
}

// NewConfig returns a Config with defaults applied.
func NewConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         defaultTimeout,
		MaxResponseSize: defaultMaxResponseSize,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("icount: base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("icount: base url must be absolute")
	}
	if c.Timeout < 0 {
		return errors.New("icount: timeout cannot be negative")
	}
	if c.MaxResponseSize < 0 {
		return errors.New("icount: max response size cannot be negative")
	}
	return nil
}

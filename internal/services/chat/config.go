// File: internal/services/chat/config.go
package chat

import (
	"fmt"
	"time"

	"github.com/iyunix/go-branchchat/internal/services/ai"
)

type Config struct {
	// Model Configuration
	DefaultModel string // model used when the request names none

	// Performance Configuration
	StreamTimeout time.Duration // upper bound on one LLM stream
	MaxRetries    int

	// Persistence Configuration
	FlushInterval time.Duration // how often streamed content is persisted
}

func (c *Config) Validate() error {
	if _, ok := ai.LookupModel(c.DefaultModel); !ok {
		return fmt.Errorf("unknown default model %q", c.DefaultModel)
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("stream_timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		DefaultModel:  "gpt-4o-mini",
		StreamTimeout: 120 * time.Second,
		MaxRetries:    3,
		FlushInterval: 500 * time.Millisecond,
	}
}

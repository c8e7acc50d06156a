// Package options carries cross-backend settings applied when a model
// client is constructed.
package options

import "net/http"

type ModelOptions struct {
	transport http.RoundTripper
	maxTokens int64
}

func (c *ModelOptions) Transport() http.RoundTripper {
	return c.transport
}

// MaxTokens returns the completion token cap, or 0 when unset.
func (c *ModelOptions) MaxTokens() int64 {
	return c.maxTokens
}

type Opt func(*ModelOptions)

// WithTransport overrides the HTTP transport, mostly for tests.
func WithTransport(t http.RoundTripper) Opt {
	return func(cfg *ModelOptions) {
		cfg.transport = t
	}
}

// WithMaxTokens overrides the configured completion token cap.
func WithMaxTokens(n int64) Opt {
	return func(cfg *ModelOptions) {
		cfg.maxTokens = n
	}
}

// Resolve applies opts over a zero ModelOptions.
func Resolve(opts ...Opt) ModelOptions {
	var m ModelOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

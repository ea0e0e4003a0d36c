package httpserver

import (
	"context"
	"log/slog"
	"time"
)

type Option func(*config)

func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: empty listen address")
	}
	return func(c *config) { c.addr = addr }
}

// WithTimeouts sets the http.Server read, write and idle timeouts.
// Zero leaves the corresponding timeout unset; negative values panic.
func WithTimeouts(read, write, idle time.Duration) Option {
	if read < 0 || write < 0 || idle < 0 {
		panic("httpserver: negative timeout")
	}
	return func(c *config) {
		c.readTimeout, c.writeTimeout, c.idleTimeout = read, write, idle
	}
}

// WithShutdownTimeout bounds http.Server.Shutdown plus every shutdown hook.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: shutdown timeout must be positive")
	}
	return func(c *config) { c.shutdownTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithShutdownHook runs fn after the listener has drained, in registration
// order. Background workers such as the lifecycle scheduler stop here.
func WithShutdownHook(name string, fn func(context.Context) error) Option {
	if fn == nil {
		panic("httpserver: nil shutdown hook " + name)
	}
	return func(c *config) {
		c.hooks = append(c.hooks, shutdownHook{name: name, fn: fn})
	}
}

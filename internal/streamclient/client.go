// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package streamclient is the Go consumer of the SSE notification stream.
//
// A Client maintains one logical connection to the stream endpoint no
// matter how many subscribers it has. Handlers receive decoded events;
// comment frames (": connected", ": ping") never reach them. Lost
// connections are re-established with exponential backoff behind a circuit
// breaker, so a flapping server is probed instead of hammered.
package streamclient

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
)

// Handler receives one decoded notification event. Handlers run on the
// client's read goroutine; long-running work belongs in the handler's own
// goroutine.
type Handler func(event *notify.Event)

// Config configures a stream client.
type Config struct {
	// BaseURL is the server root, e.g. "http://fleetman:8085".
	BaseURL string

	// Token authenticates the stream request.
	Token string

	// HTTPClient is used for stream requests. Defaults to a client without
	// a timeout; SSE responses are deliberately unbounded.
	HTTPClient *http.Client

	// InitialBackoff is the first reconnect delay. Default 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Default 30s.
	MaxBackoff time.Duration

	// BreakerFailures is the consecutive connect failures that open the
	// circuit breaker. Default 5.
	BreakerFailures uint32

	// BreakerWindow is how long the breaker stays open before probing
	// again. Default 60s.
	BreakerWindow time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{}
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.BreakerFailures == 0 {
		out.BreakerFailures = 5
	}
	if out.BreakerWindow <= 0 {
		out.BreakerWindow = 60 * time.Second
	}
	return out
}

// Client is a reconnecting subscriber to the notification stream.
// All methods are safe for concurrent use.
type Client struct {
	config  Config
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  zerolog.Logger

	mu       sync.Mutex
	handlers map[uint64]Handler
	nextID   uint64
	cancel   context.CancelFunc
	done     chan struct{}

	connected atomic.Bool
}

// New creates a stream client. Connect starts the connection.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("streamclient: base URL is required")
	}
	cfg := config.withDefaults()

	c := &Client{
		config:   cfg,
		handlers: make(map[uint64]Handler),
		logger:   logging.WithComponent("streamclient"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "notification-stream",
		Timeout: cfg.BreakerWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Stream breaker state changed")
		},
	})

	return c, nil
}

// Connect starts the connection loop. Calling Connect on a client that is
// already running is a no-op, so every caller shares the same underlying
// connection.
//
// The loop runs until ctx is canceled or Close is called.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)
}

// Close stops the connection loop and waits for it to exit.
// The handler set survives Close; a later Connect resumes delivery.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (c *Client) Subscribe(h Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

// IsConnected reports whether the client currently holds an open stream.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// run is the connection loop: dial, read until the stream drops, back off,
// repeat.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialBackoff
	b.MaxInterval = c.config.MaxBackoff
	b.MaxElapsedTime = 0 // retry forever; the breaker handles pathology
	b.Reset()

	for {
		if ctx.Err() != nil {
			return
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.dial(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			c.logger.Debug().Err(err).Dur("retry_in", wait).Msg("Stream connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		b.Reset()
		c.connected.Store(true)
		c.logger.Info().Str("url", c.config.BaseURL).Msg("Notification stream connected")

		c.readLoop(ctx, resp)

		c.connected.Store(false)
		c.logger.Info().Msg("Notification stream disconnected")
	}
}

// dial opens the SSE request and validates the response before any frame
// is read.
func (c *Client) dial(ctx context.Context) (*http.Response, error) {
	url := c.config.BaseURL + "/api/v1/notifications/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream rejected: status %d", resp.StatusCode)
	}
	return resp, nil
}

// readLoop decodes frames until the stream drops. Comment frames are
// connection plumbing and never reach handlers.
func (c *Client) readLoop(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		event, err := notify.DecodeDataLine(scanner.Bytes())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Skipping undecodable stream frame")
			continue
		}
		if event == nil {
			// Comment frame or frame separator.
			continue
		}

		c.deliver(event)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Debug().Err(err).Msg("Stream read ended")
	}
}

// deliver fans one event out to every registered handler.
func (c *Client) deliver(event *notify.Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		// Each handler gets its own copy so one subscriber mutating
		// metadata cannot poison its siblings.
		h(event.Clone())
	}
}

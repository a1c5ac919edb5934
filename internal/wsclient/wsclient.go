// Package wsclient implements a reconnecting gorilla/websocket consumer for
// Binance USD-M futures combined streams (depth diffs and aggregate
// trades).
//
// Grounded on the teacher's internal/ingest/depth.go and internal/ingest/
// ingest.go: dial, read loop, exponential backoff from 1s doubling to a
// 30s ceiling on any read/dial error, generalized here from a fixed
// single-stream URL and float64 parsing into a combined-stream client that
// hands raw frames to a caller-supplied decoder.
package wsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// FrameHandler processes one raw message frame. Returning an error tears
// down the connection and triggers reconnect.
type FrameHandler func(raw []byte) error

// Client dials url and hands every received frame to a FrameHandler, with
// exponential-backoff reconnect on any error.
type Client struct {
	url     string
	handler FrameHandler
	log     zerolog.Logger

	onConnected func()

	forceReconnect  chan struct{}
	connectedSignal chan struct{}
}

// New constructs a Client for url, dispatching frames to handler.
func New(url string, handler FrameHandler, log zerolog.Logger) *Client {
	return &Client{
		url:             url,
		handler:         handler,
		log:             log.With().Str("component", "wsclient").Logger(),
		forceReconnect:  make(chan struct{}, 1),
		connectedSignal: make(chan struct{}, 1),
	}
}

// OnConnected registers a callback invoked once per successful dial, before
// the read loop starts.
func (c *Client) OnConnected(fn func()) {
	c.onConnected = fn
}

// Connected signals once per successful dial, after onConnected has run.
// Used by the Supervisor's reconnector adapter to know when a
// watchdog-triggered ForceReconnect has actually completed.
func (c *Client) Connected() <-chan struct{} {
	return c.connectedSignal
}

// ForceReconnect tears down the current connection, if any, and causes Run
// to redial immediately with no backoff delay — used when the Watchdog
// decides the stream is stale even though no read error has occurred.
func (c *Client) ForceReconnect() {
	select {
	case c.forceReconnect <- struct{}{}:
	default:
	}
}

// Run dials and reads until ctx is cancelled, reconnecting with exponential
// backoff (1s doubling to 30s) on any dial or read error. A ForceReconnect
// call redials immediately, bypassing backoff, since it isn't an error.
func (c *Client) Run(ctx context.Context) error {
	delay := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream error, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		} else {
			delay = initialBackoff
		}
	}
}

func (c *Client) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	if c.onConnected != nil {
		c.onConnected()
	}
	select {
	case c.connectedSignal <- struct{}{}:
	default:
	}

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			frames <- raw
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.forceReconnect:
			return nil
		case err := <-readErrs:
			return fmt.Errorf("read: %w", err)
		case raw := <-frames:
			if err := c.handler(raw); err != nil {
				return fmt.Errorf("handle frame: %w", err)
			}
		}
	}
}

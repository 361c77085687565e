/*
 *	cloudrpc allows for clients to call procedures on a compute server remotely.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package client

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"go.arsenm.dev/cloudrpc/codec"
	"go.arsenm.dev/cloudrpc/internal/logging"
	"go.arsenm.dev/cloudrpc/internal/types"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofrs/uuid"
	"golang.org/x/net/websocket"
)

// State is the state of a client's connection
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	callsTotal      = metrics.NewCounter("cloudrpc_client_calls_total")
	callErrorsTotal = metrics.NewCounter("cloudrpc_client_call_errors_total")
	unsolicitedMsgs = metrics.NewCounter("cloudrpc_client_unsolicited_messages_total")
)

// Client is a cloudrpc client. It owns a single WebSocket
// connection and allows one call to await a response at a time.
type Client struct {
	endpoint string
	origin   string
	header   http.Header
	codec    codec.Codec
	id       uuid.UUID

	log       *logging.Logger
	onMessage func(any, error)

	mtx     sync.Mutex
	state   State
	ws      *websocket.Conn
	pending *Future
}

// New creates a client for the given endpoint, such as
// ws://localhost:9009. It does not connect; see Connect.
func New(endpoint string, opts ...Option) *Client {
	out := &Client{
		endpoint: endpoint,
		origin:   DefaultOrigin,
		header:   http.Header{},
		codec:    codec.Default,
		id:       uuid.Must(uuid.NewV4()),
		log:      logging.GetLogger("client"),
	}

	for _, opt := range opts {
		opt(out)
	}

	return out
}

// Dial creates a client for the given endpoint and connects it
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c := New(endpoint, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Endpoint returns the address the client connects to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// State returns the current state of the connection
func (c *Client) State() State {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state
}

// Connect opens the connection to the server. It returns once
// the connection is open or the attempt has failed. A failed
// attempt leaves the client disconnected, so Connect may be
// called again.
func (c *Client) Connect(ctx context.Context) error {
	c.mtx.Lock()
	switch c.state {
	case Connecting, Open:
		c.mtx.Unlock()
		return ErrAlreadyConnected
	case Closed:
		c.mtx.Unlock()
		return ErrClosed
	}
	c.state = Connecting
	c.mtx.Unlock()

	ws, err := c.dial(ctx)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	// The client may have been closed while dialing
	if c.state == Closed {
		if ws != nil {
			ws.Close()
		}
		return ErrClosed
	}

	if err != nil {
		c.state = Disconnected
		return &ConnectionError{Endpoint: c.endpoint, Err: err}
	}

	c.ws = ws
	c.state = Open
	c.log.Infof("connected to %s (conn %s, codec %s)", c.endpoint, c.id, c.codec.Name)

	go c.handleConn(ws)

	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	config, err := websocket.NewConfig(c.endpoint, c.origin)
	if err != nil {
		return nil, err
	}
	for k, v := range c.header {
		config.Header[k] = append(config.Header[k], v...)
	}
	return config.DialContext(ctx)
}

// Invoke sends a call to the named procedure and returns a Future
// that is resolved by the next message the server sends.
//
// Only one call may await a response at a time. Invoke returns
// ErrBusy if another call is still waiting, and ErrNotOpen if the
// connection is not open. cache is passed to the server as is.
//
// If writing the request fails, including when ctx is canceled or
// its deadline passes during the write, the connection is closed.
func (c *Client) Invoke(ctx context.Context, pkg string, args []any, kwargs map[string]any, cache bool) (*Future, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Create new v4 UUID to trace the call
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	c.mtx.Lock()
	if c.state != Open {
		c.mtx.Unlock()
		return nil, ErrNotOpen
	}
	if c.pending != nil {
		c.mtx.Unlock()
		return nil, ErrBusy
	}
	// Claim the pending slot before sending so the
	// reply cannot arrive without a waiter
	fut := newFuture(id, pkg)
	c.pending = fut
	ws := c.ws
	c.mtx.Unlock()

	// Encode request using codec
	data, err := c.codec.Marshal(types.NewRequest(pkg, args, kwargs, cache))
	if err != nil {
		c.release(fut)
		callErrorsTotal.Inc()
		return nil, fmt.Errorf("encoding %s: %w", pkg, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetWriteDeadline(deadline)
		defer ws.SetWriteDeadline(time.Time{})
	}

	// Unblock the write if ctx is canceled while it is in progress.
	// ws.Close cannot be used here as it waits for the write to finish.
	stop := context.AfterFunc(ctx, func() {
		ws.SetWriteDeadline(time.Unix(1, 0))
	})

	err = c.codec.WritePayload(ws, data)
	if !stop() {
		err = ctx.Err()
	}
	if err != nil {
		// The request may have been cut off partway through a frame,
		// after which the connection is unusable
		ws.Close()
		c.release(fut)
		callErrorsTotal.Inc()
		return nil, fmt.Errorf("sending %s: %w", pkg, err)
	}

	callsTotal.Inc()
	c.log.Debugf("sent %s (call %s, cache=%t)", pkg, fut.ID(), cache)

	return fut, nil
}

// Call invokes the named procedure, waits for the response and
// stores it in the value pointed to by ret. If ret is nil, the
// response is discarded.
func (c *Client) Call(ctx context.Context, pkg string, args []any, kwargs map[string]any, cache bool, ret any) error {
	fut, err := c.Invoke(ctx, pkg, args, kwargs, cache)
	if err != nil {
		return err
	}

	if ret == nil {
		_, err = fut.Wait(ctx)
		return err
	}

	return fut.Decode(ctx, ret)
}

// Go invokes the named procedure and returns immediately.
// fn is called from another goroutine with the response or
// the error that ended the call.
func (c *Client) Go(ctx context.Context, pkg string, args []any, kwargs map[string]any, cache bool, fn func(any, error)) error {
	fut, err := c.Invoke(ctx, pkg, args, kwargs, cache)
	if err != nil {
		return err
	}

	go func() {
		<-fut.Done()
		fn(fut.val, fut.err)
	}()

	return nil
}

// Close closes the connection. A call still awaiting
// a response fails with ErrClosed.
func (c *Client) Close() error {
	c.mtx.Lock()
	if c.state == Closed {
		c.mtx.Unlock()
		return nil
	}
	c.state = Closed
	ws := c.ws
	fut := c.takePending()
	c.mtx.Unlock()

	if fut != nil {
		c.finish(fut, nil, nil, ErrClosed)
	}

	if ws == nil {
		return nil
	}

	c.log.Infof("closing connection to %s (conn %s)", c.endpoint, c.id)
	return ws.Close()
}

func (c *Client) handleConn(ws *websocket.Conn) {
	for {
		var data []byte
		// Read the next message, whatever its frame type
		err := websocket.Message.Receive(ws, &data)
		if err != nil {
			c.connLost(ws, err)
			return
		}

		var val any
		err = c.codec.Unmarshal(data, &val)
		if err != nil {
			err = &ParseError{Payload: data, Err: err}
			c.log.Warningf("received malformed message: %v", err)
		} else {
			c.log.Debugf("received: %s", data)
		}

		// The message belongs to whichever call was pending when it arrived
		c.mtx.Lock()
		fut := c.takePending()
		c.mtx.Unlock()

		if c.onMessage != nil {
			c.onMessage(val, err)
		}

		if fut == nil {
			unsolicitedMsgs.Inc()
			c.log.Warningf("dropping message received while no call was waiting")
			continue
		}

		c.finish(fut, val, data, err)
	}
}

// connLost fails the pending call after the reader stops
func (c *Client) connLost(ws *websocket.Conn, err error) {
	c.mtx.Lock()
	if c.ws != ws {
		c.mtx.Unlock()
		return
	}

	var callErr error = ErrClosed
	if c.state != Closed {
		c.state = Closed
		callErr = &ConnectionError{Endpoint: c.endpoint, Err: err}
		c.log.Errorf("lost connection to %s: %v", c.endpoint, err)
	}
	fut := c.takePending()
	c.mtx.Unlock()

	ws.Close()

	if fut != nil {
		c.finish(fut, nil, nil, callErr)
	}
}

// release empties the pending slot if fut is still in it
func (c *Client) release(fut *Future) {
	c.mtx.Lock()
	if c.pending == fut {
		c.pending = nil
	}
	c.mtx.Unlock()
}

// takePending empties the pending slot and returns what was in it.
// c.mtx must be held.
func (c *Client) takePending() *Future {
	fut := c.pending
	c.pending = nil
	return fut
}

func (c *Client) finish(fut *Future, val any, raw []byte, err error) {
	if !fut.resolve(val, raw, err) {
		return
	}

	if err != nil {
		callErrorsTotal.Inc()
	}
	metrics.GetOrCreateHistogram(
		fmt.Sprintf(`cloudrpc_client_call_duration_seconds{package=%q}`, metricLabel(fut.pkg)),
	).UpdateDuration(fut.start)
}

var labelRgx = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// metricLabel returns pkg if it is safe to use as a label value
func metricLabel(pkg string) string {
	if labelRgx.MatchString(pkg) {
		return pkg
	}
	return "invalid"
}

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
	"net/http"

	"go.arsenm.dev/cloudrpc/codec"
	"go.arsenm.dev/cloudrpc/internal/logging"
)

// DefaultOrigin is the Origin header sent during the handshake
// unless WithOrigin is used
const DefaultOrigin = "http://localhost/"

// Option configures a Client
type Option func(*Client)

// WithCodec sets the codec used to encode requests and decode responses
func WithCodec(cdc codec.Codec) Option {
	return func(c *Client) {
		c.codec = cdc
	}
}

// WithOrigin sets the Origin header sent during the WebSocket handshake
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = origin
	}
}

// WithHeader adds extra headers to the WebSocket handshake
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for k, v := range header {
			c.header[k] = append(c.header[k], v...)
		}
	}
}

// WithLogger sets the logger used by the client
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithOnMessage registers a function that observes every
// message received on the connection, whether or not a
// call was waiting for it. err is non-nil if the message
// could not be decoded.
//
// The function runs on the connection's reader goroutine
// and must not block.
func WithOnMessage(fn func(val any, err error)) Option {
	return func(c *Client) {
		c.onMessage = fn
	}
}

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
	"errors"
	"fmt"
)

// Client error values
var (
	ErrNotOpen          = errors.New("connection is not open")
	ErrBusy             = errors.New("a request is already awaiting a response on this connection")
	ErrClosed           = errors.New("connection closed")
	ErrAlreadyConnected = errors.New("client is already connecting or connected")
	ErrNotReference     = errors.New("reply is not an object reference")
)

// ConnectionError is returned when the connection to the
// server cannot be established or is lost
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a message received from the
// server cannot be decoded
type ParseError struct {
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

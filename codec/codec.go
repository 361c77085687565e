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

package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/net/websocket"
)

// ErrInvalidUTF8 is returned by the JSON codec when a
// text payload is not valid UTF-8
var ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")

// Codec converts values to and from the payload of a
// single WebSocket message
type Codec struct {
	// Name is the name used to select this codec in configuration
	Name string
	// PayloadType is the WebSocket frame type written by Send
	PayloadType byte

	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
}

// Default is the default Codec
var Default = JSON

// JSON encodes messages as JSON text frames
var JSON = Codec{
	Name:        "json",
	PayloadType: websocket.TextFrame,
	marshal:     json.Marshal,
	unmarshal: func(data []byte, v any) error {
		if !utf8.Valid(data) {
			return ErrInvalidUTF8
		}
		return json.Unmarshal(data, v)
	},
}

// Msgpack encodes messages as MessagePack binary frames
var Msgpack = Codec{
	Name:        "msgpack",
	PayloadType: websocket.BinaryFrame,
	marshal:     msgpack.Marshal,
	// msgpack decodes maps into map[string]any by default,
	// the same shape the JSON codec produces
	unmarshal: msgpack.Unmarshal,
}

// ByName returns the codec with the given name
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", JSON.Name:
		return JSON, nil
	case Msgpack.Name:
		return Msgpack, nil
	default:
		return Codec{}, fmt.Errorf("unknown codec %q, must be one of json, msgpack", name)
	}
}

// Marshal encodes v into a message payload
func (c Codec) Marshal(v any) ([]byte, error) {
	return c.marshal(v)
}

// Unmarshal decodes a message payload into v
func (c Codec) Unmarshal(data []byte, v any) error {
	return c.unmarshal(data, v)
}

// Send encodes v and writes it to ws as a single message
func (c Codec) Send(ws *websocket.Conn, v any) error {
	return c.websocket().Send(ws, v)
}

// Receive reads a single message from ws and decodes it into v
func (c Codec) Receive(ws *websocket.Conn, v any) error {
	return c.websocket().Receive(ws, v)
}

// WritePayload writes data, as returned by Marshal, to ws
// as a single message
func (c Codec) WritePayload(ws *websocket.Conn, data []byte) error {
	raw := websocket.Codec{
		Marshal: func(any) ([]byte, byte, error) {
			return data, c.PayloadType, nil
		},
	}
	return raw.Send(ws, nil)
}

func (c Codec) websocket() websocket.Codec {
	return websocket.Codec{
		Marshal: func(v any) ([]byte, byte, error) {
			data, err := c.marshal(v)
			return data, c.PayloadType, err
		},
		Unmarshal: func(data []byte, _ byte, v any) error {
			return c.unmarshal(data, v)
		},
	}
}

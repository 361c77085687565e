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

	"go.arsenm.dev/cloudrpc/internal/types"
)

// Reference points to an object stored on the server. A Reference
// passed as an argument to a call is replaced on the server by the
// object it points to.
type Reference = types.Reference

// Cache stores obj on the server using the rpc.cache procedure
// and returns a reference to it
func (c *Client) Cache(ctx context.Context, obj any) (Reference, error) {
	var val any
	err := c.Call(ctx, "rpc.cache", []any{obj}, nil, false, &val)
	if err != nil {
		return Reference{}, err
	}

	id, ok := types.AsReference(val)
	if !ok {
		return Reference{}, fmt.Errorf("%w: %v", ErrNotReference, val)
	}
	return Reference{CachedObject: id}, nil
}

// Get retrieves the object ref points to using the rpc.get
// procedure and stores it in the value pointed to by out
func (c *Client) Get(ctx context.Context, ref Reference, out any) error {
	return c.Call(ctx, "rpc.get", []any{ref}, nil, false, out)
}

// Release removes the object ref points to from the server using
// the rpc.release procedure. It reports whether the object existed.
func (c *Client) Release(ctx context.Context, ref Reference) (bool, error) {
	var existed bool
	err := c.Call(ctx, "rpc.release", []any{ref.CachedObject}, nil, false, &existed)
	return existed, err
}

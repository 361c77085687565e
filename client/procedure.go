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

import "context"

// Procedure is a handle bound to a single procedure on the server,
// with the cache flag fixed for every call made through it
type Procedure struct {
	c     *Client
	name  string
	cache bool
}

// Procedure returns a handle for the named procedure. No request
// is sent until the handle is called.
func (c *Client) Procedure(name string, cache bool) *Procedure {
	return &Procedure{c: c, name: name, cache: cache}
}

// Name returns the name of the procedure
func (p *Procedure) Name() string {
	return p.name
}

// Invoke sends a call to the procedure, see Client.Invoke
func (p *Procedure) Invoke(ctx context.Context, args []any, kwargs map[string]any) (*Future, error) {
	return p.c.Invoke(ctx, p.name, args, kwargs, p.cache)
}

// Call calls the procedure and stores the result in the value
// pointed to by ret, see Client.Call
func (p *Procedure) Call(ctx context.Context, args []any, kwargs map[string]any, ret any) error {
	return p.c.Call(ctx, p.name, args, kwargs, p.cache, ret)
}

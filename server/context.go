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

package server

import (
	"context"

	"go.arsenm.dev/cloudrpc/internal/reflectutil"
)

// Context is passed as the first argument to every procedure.
// It carries the call's keyword arguments and is canceled when
// the connection that made the call goes away.
type Context struct {
	context.Context

	// Package is the name the procedure was called by
	Package string
	// Kwargs holds the keyword arguments of the call
	Kwargs map[string]any
	// Cache reports whether the caller asked for the result to be cached
	Cache bool
	// ConnID identifies the connection the call arrived on
	ConnID string
}

// Kwarg decodes the keyword argument with the given name into
// the value pointed to by out. It reports whether the argument
// was present.
func (ctx *Context) Kwarg(name string, out any) (bool, error) {
	val, ok := ctx.Kwargs[name]
	if !ok {
		return false, nil
	}
	return true, reflectutil.Assign(val, out)
}

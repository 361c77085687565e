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
	"sync"
	"time"

	"go.arsenm.dev/cloudrpc/internal/reflectutil"

	"github.com/gofrs/uuid"
)

// Future is the outcome of a single call. It is resolved
// by the next message received after the call was sent,
// or failed if the connection breaks first.
type Future struct {
	id    uuid.UUID
	pkg   string
	start time.Time

	once sync.Once
	done chan struct{}

	val any
	raw []byte
	err error
}

func newFuture(id uuid.UUID, pkg string) *Future {
	return &Future{
		id:    id,
		pkg:   pkg,
		start: time.Now(),
		done:  make(chan struct{}),
	}
}

// resolve sets the outcome of the future. Only the first
// call has any effect.
func (f *Future) resolve(val any, raw []byte, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.val, f.raw, f.err = val, raw, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// ID returns the ID used to trace this call in logs
func (f *Future) ID() string {
	return f.id.String()
}

// Package returns the name of the called procedure
func (f *Future) Package() string {
	return f.pkg
}

// Done returns a channel that is closed once the
// outcome of the call is known
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call completes or ctx is done.
//
// Giving up on a wait does not cancel the call. The
// connection stays busy until the server replies.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call to complete and stores
// the decoded result in the value pointed to by out
func (f *Future) Decode(ctx context.Context, out any) error {
	val, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	return reflectutil.Assign(val, out)
}

// Raw returns the payload of the message that resolved the
// call, or nil if no message was received for it
func (f *Future) Raw() []byte {
	select {
	case <-f.done:
		return f.raw
	default:
		return nil
	}
}

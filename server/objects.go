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
	"fmt"

	"go.arsenm.dev/cloudrpc/internal/types"

	"github.com/gofrs/uuid"
)

// CacheObject stores obj on the server and returns a reference to it.
// Passing the reference as an argument or keyword argument of a later
// call passes obj instead.
func (s *Server) CacheObject(obj any) types.Reference {
	id := uuid.Must(uuid.NewV4()).String()
	s.objects.Store(id, obj)
	s.log.Debugf("cached object %s", id)
	return types.Reference{CachedObject: id}
}

// Object returns the object with the given ID
func (s *Server) Object(id string) (any, bool) {
	return s.objects.Load(id)
}

// ReleaseObject removes the object with the given ID. It reports
// whether the object existed.
func (s *Server) ReleaseObject(id string) bool {
	_, ok := s.objects.LoadAndDelete(id)
	return ok
}

// resolveRefs replaces top-level arguments and keyword arguments
// that are references with the objects they point to
func (s *Server) resolveRefs(args []any, kwargs map[string]any) ([]any, map[string]any, error) {
	var outArgs []any
	for i, arg := range args {
		id, ok := types.AsReference(arg)
		if !ok {
			continue
		}
		obj, ok := s.objects.Load(id)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoSuchObject, id)
		}
		// Copy before the first replacement so the request is left as is
		if outArgs == nil {
			outArgs = append([]any(nil), args...)
		}
		outArgs[i] = obj
	}
	if outArgs == nil {
		outArgs = args
	}

	var outKwargs map[string]any
	for name, kwarg := range kwargs {
		id, ok := types.AsReference(kwarg)
		if !ok {
			continue
		}
		obj, ok := s.objects.Load(id)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoSuchObject, id)
		}
		if outKwargs == nil {
			outKwargs = make(map[string]any, len(kwargs))
			for k, v := range kwargs {
				outKwargs[k] = v
			}
		}
		outKwargs[name] = obj
	}
	if outKwargs == nil {
		outKwargs = kwargs
	}

	return outArgs, outKwargs, nil
}

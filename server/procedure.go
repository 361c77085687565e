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
	"reflect"
	"sort"

	"go.arsenm.dev/cloudrpc/internal/reflectutil"
	"go.arsenm.dev/cloudrpc/internal/types"
)

var (
	contextType = reflect.TypeOf((*Context)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// procedure is a registered function that can be called by clients
type procedure struct {
	name string
	fn   reflect.Value
}

// ProcedureDesc describes a registered procedure
type ProcedureDesc struct {
	Name     string   `json:"name" msgpack:"name"`
	Args     []string `json:"args" msgpack:"args"`
	Variadic bool     `json:"variadic" msgpack:"variadic"`
	Returns  []string `json:"returns" msgpack:"returns"`
}

// call converts the positional arguments to the function's
// parameter types and runs it
func (p procedure) call(ctx *Context, args []any) (ret any, err error) {
	fnType := p.fn.Type()

	// Skip first parameter, as it is *Context
	numParams := fnType.NumIn() - 1
	if fnType.IsVariadic() {
		if len(args) < numParams-1 {
			return nil, fmt.Errorf("%w: %s takes at least %d arguments, got %d", ErrArgCount, p.name, numParams-1, len(args))
		}
	} else if len(args) != numParams {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrArgCount, p.name, numParams, len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for i, arg := range args {
		argVal, err := reflectutil.ValueOf(arg, p.argType(i))
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d of %s: %v", ErrInvalidArgument, i, p.name, err)
		}
		in = append(in, argVal)
	}

	defer func() {
		if r := recover(); r != nil {
			ret, err = nil, fmt.Errorf("%s panicked: %v", p.name, r)
		}
	}()

	out := p.fn.Call(in)

	switch len(out) {
	case 1:
		if fnType.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, nil
	}
}

// argType returns the type positional argument i is converted to
func (p procedure) argType(i int) reflect.Type {
	fnType := p.fn.Type()
	last := fnType.NumIn() - 1
	if fnType.IsVariadic() && i+1 >= last {
		return fnType.In(last).Elem()
	}
	return fnType.In(i + 1)
}

func (p procedure) describe() ProcedureDesc {
	fnType := p.fn.Type()

	// Skip first argument, as it is *Context
	args := make([]string, 0, fnType.NumIn()-1)
	for i := 1; i < fnType.NumIn(); i++ {
		args = append(args, fnType.In(i).String())
	}

	returns := make([]string, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		returns = append(returns, fnType.Out(i).String())
	}

	return ProcedureDesc{
		Name:     p.name,
		Args:     args,
		Variadic: fnType.IsVariadic(),
		Returns:  returns,
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// fnValid checks that fn can be registered as a procedure
func fnValid(fn reflect.Value) bool {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return false
	}
	fnType := fn.Type()

	// The first parameter must be the call context
	if fnType.NumIn() < 1 || fnType.In(0) != contextType {
		return false
	}

	switch fnType.NumOut() {
	case 0, 1:
		return true
	case 2:
		// The second return value must be an error
		return fnType.Out(1) == errorType
	default:
		return false
	}
}

// Procedures returns descriptions of all registered procedures, sorted by name
func (s *Server) Procedures() []ProcedureDesc {
	s.procsMtx.RLock()
	defer s.procsMtx.RUnlock()

	out := make([]ProcedureDesc, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p.describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Describe returns the description of the named procedure
func (s *Server) Describe(name string) (ProcedureDesc, error) {
	s.procsMtx.RLock()
	defer s.procsMtx.RUnlock()

	p, ok := s.procs[name]
	if !ok {
		return ProcedureDesc{}, fmt.Errorf("%w: %s", ErrNoSuchProcedure, name)
	}
	return p.describe(), nil
}

// registerBuiltins registers the procedures available on every server
func (s *Server) registerBuiltins() {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(s.Register("rpc.procedures", func(_ *Context) []ProcedureDesc {
		return s.Procedures()
	}))
	must(s.Register("rpc.describe", func(_ *Context, name string) (ProcedureDesc, error) {
		return s.Describe(name)
	}))
	must(s.Register("rpc.cache", func(_ *Context, obj any) types.Reference {
		return s.CacheObject(obj)
	}))
	// References are resolved before the call, so obj is already the stored object
	must(s.Register("rpc.get", func(_ *Context, obj any) any {
		return obj
	}))
	must(s.Register("rpc.release", func(_ *Context, id string) bool {
		return s.ReleaseObject(id)
	}))
}

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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go.arsenm.dev/cloudrpc/codec"
	"go.arsenm.dev/cloudrpc/internal/logging"
	"go.arsenm.dev/cloudrpc/internal/types"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofrs/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidName      = errors.New("procedure name must be a dotted identifier")
	ErrInvalidType      = errors.New("type must be struct or pointer to struct")
	ErrInvalidProcedure = errors.New("function invalid for cloudrpc call")
	ErrNoSuchProcedure  = errors.New("no such procedure registered")
	ErrArgCount         = errors.New("wrong number of arguments")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrNoSuchObject     = errors.New("no such cached object")
)

var nameRgx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Option configures a Server
type Option func(*Server)

// WithCodec sets the codec used on WebSocket connections
func WithCodec(cdc codec.Codec) Option {
	return func(s *Server) {
		s.codec = cdc
	}
}

// WithRateLimit limits calls across all connections to r per
// second, allowing bursts of up to burst calls. Calls over the
// limit receive an error reply.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// DefaultMaxBodySize is the largest request body accepted by
// POST /call unless WithMaxBodySize is used
const DefaultMaxBodySize = 32 << 20

// WithMaxBodySize limits the size of request bodies sent to
// POST /call to n bytes
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBody = n
	}
}

// WithLogger sets the logger used by the server
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// Server is a reference cloudrpc compute server. It executes
// registered procedures and replies to every request with
// exactly one message, in the order requests were received.
type Server struct {
	procsMtx sync.RWMutex
	procs    map[string]procedure

	cache   *xsync.MapOf[string, any]
	objects *xsync.MapOf[string, any]
	limiter *rate.Limiter
	codec   codec.Codec
	maxBody int64
	log     *logging.Logger

	metrics     *metrics.Set
	cacheHits   *metrics.Counter
	cacheMisses *metrics.Counter
	limited     *metrics.Counter
}

// New creates and returns a new server
func New(opts ...Option) *Server {
	set := metrics.NewSet()

	out := &Server{
		procs:       map[string]procedure{},
		cache:       xsync.NewMapOf[string, any](),
		objects:     xsync.NewMapOf[string, any](),
		codec:       codec.Default,
		maxBody:     DefaultMaxBodySize,
		log:         logging.GetLogger("server"),
		metrics:     set,
		cacheHits:   set.NewCounter("cloudrpc_server_cache_hits_total"),
		cacheMisses: set.NewCounter("cloudrpc_server_cache_misses_total"),
		limited:     set.NewCounter("cloudrpc_server_rate_limited_total"),
	}

	for _, opt := range opts {
		opt(out)
	}

	out.registerBuiltins()

	return out
}

// Register registers fn under the given dotted name, such as
// "compas.geometry.transform_points".
//
// fn must take a *Context as its first parameter, followed by
// the positional arguments of the call. It may return nothing,
// a value, an error, or a value and an error.
func (s *Server) Register(name string, fn any) error {
	if !nameRgx.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	fnVal := reflect.ValueOf(fn)
	if !fnValid(fnVal) {
		return fmt.Errorf("%w: %s", ErrInvalidProcedure, name)
	}

	s.procsMtx.Lock()
	s.procs[name] = procedure{name: name, fn: fnVal}
	s.procsMtx.Unlock()

	return nil
}

// RegisterReceiver registers every valid method of v as
// prefix.method_name, converting the method's name to snake case.
// If prefix is empty, the snake case name of v's type is used.
func (s *Server) RegisterReceiver(prefix string, v any) error {
	// Get reflect values for v
	val := reflect.ValueOf(v)

	var typeName string
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			return ErrInvalidType
		}
		// If v is a pointer, get the name of the underlying type
		typeName = val.Elem().Type().Name()
	case reflect.Struct:
		typeName = val.Type().Name()
	default:
		return ErrInvalidType
	}

	if prefix == "" {
		prefix = snakeCase(typeName)
	}

	valType := val.Type()
	for i := 0; i < val.NumMethod(); i++ {
		mtd := val.Method(i)
		// If invalid, skip
		if !fnValid(mtd) {
			continue
		}

		err := s.Register(prefix+"."+snakeCase(valType.Method(i).Name), mtd.Interface())
		if err != nil {
			return err
		}
	}

	return nil
}

// snakeCase converts a Go identifier such as TransformPoints
// or HTTPStatus to transform_points or http_status
func snakeCase(name string) string {
	runes := []rune(name)

	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Start a new word at a lower-to-upper boundary, or
			// at the last capital of an acronym
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

// ClearCache removes all cached results
func (s *Server) ClearCache() {
	s.cache.Clear()
}

// Execute runs the procedure named in req and returns its result.
// If req.Cache is set, results are memoized by package and arguments.
// Arguments that are object references are replaced by the objects
// they point to before the procedure runs.
func (s *Server) Execute(ctx context.Context, connID string, req types.Request) (any, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.limited.Inc()
		return nil, ErrRateLimited
	}

	s.procsMtx.RLock()
	proc, ok := s.procs[req.Package]
	s.procsMtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchProcedure, req.Package)
	}

	var key string
	if req.Cache {
		key = cacheKey(req)
		if key != "" {
			if val, ok := s.cache.Load(key); ok {
				s.cacheHits.Inc()
				return val, nil
			}
			s.cacheMisses.Inc()
		}
	}

	args, kwargs, err := s.resolveRefs(req.Args, req.Kwargs)
	if err != nil {
		return nil, err
	}

	s.metrics.GetOrCreateCounter(fmt.Sprintf(`cloudrpc_server_calls_total{package=%q}`, req.Package)).Inc()
	val, err := proc.call(&Context{
		Context: ctx,
		Package: req.Package,
		Kwargs:  kwargs,
		Cache:   req.Cache,
		ConnID:  connID,
	}, args)
	if err != nil {
		s.metrics.GetOrCreateCounter(fmt.Sprintf(`cloudrpc_server_call_errors_total{package=%q}`, req.Package)).Inc()
		return nil, err
	}

	if key != "" {
		s.cache.Store(key, val)
	}

	return val, nil
}

// cacheKey returns a key identifying the call's package and
// arguments, or "" if the arguments cannot be encoded
func cacheKey(req types.Request) string {
	// encoding/json sorts map keys, so equal kwargs produce equal keys
	data, err := json.Marshal([]any{req.Package, req.Args, req.Kwargs})
	if err != nil {
		return ""
	}
	return string(data)
}

// ServeConn serves calls on a single WebSocket connection until
// the client disconnects or ctx is canceled
func (s *Server) ServeConn(ctx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connID := uuid.Must(uuid.NewV4()).String()
	s.log.Infof("accepted connection %s", connID)

	// Unblock the read loop once ctx is canceled
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		var data []byte
		err := websocket.Message.Receive(ws, &data)
		if err == io.EOF {
			break
		} else if err != nil {
			s.log.Warningf("reading from connection %s: %v", connID, err)
			break
		}

		var req types.Request
		err = s.codec.Unmarshal(data, &req)
		if err != nil {
			s.sendErr(ws, connID, err)
			continue
		}

		s.log.Debugf("call %s on connection %s", req.Package, connID)

		val, err := s.Execute(ctx, connID, req)
		if err != nil {
			s.sendErr(ws, connID, err)
			continue
		}

		// Encode response using codec
		err = s.codec.Send(ws, val)
		if err != nil {
			s.log.Errorf("encoding reply to %s on connection %s: %v", req.Package, connID, err)
			s.sendErr(ws, connID, err)
		}
	}

	s.log.Infof("connection %s closed", connID)
}

// sendErr sends an error reply
func (s *Server) sendErr(ws *websocket.Conn, connID string, err error) {
	s.log.Debugf("error reply on connection %s: %v", connID, err)
	if err := s.codec.Send(ws, types.ErrorReply{Error: err.Error()}); err != nil {
		s.log.Warningf("sending error reply on connection %s: %v", connID, err)
	}
}

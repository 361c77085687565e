package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"go.arsenm.dev/cloudrpc/internal/types"

	"golang.org/x/net/websocket"
)

type Arith struct{}

func (Arith) Add(ctx *Context, a, b float64) float64 {
	return a + b
}

func (Arith) Div(ctx *Context, a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (Arith) Sum(ctx *Context, nums ...float64) float64 {
	var out float64
	for _, n := range nums {
		out += n
	}
	return out
}

func (Arith) Scale(ctx *Context, v float64) (float64, error) {
	factor := 1.0
	if _, err := ctx.Kwarg("factor", &factor); err != nil {
		return 0, err
	}
	return v * factor, nil
}

// Helper does not take a *Context and must not be registered
func (Arith) Helper(a int) int {
	return a
}

func newArithServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := New(opts...)
	if err := s.RegisterReceiver("", Arith{}); err != nil {
		t.Fatal(err)
	}
	return s
}

func execute(s *Server, pkg string, args []any, kwargs map[string]any, cache bool) (any, error) {
	return s.Execute(context.Background(), "test", types.NewRequest(pkg, args, kwargs, cache))
}

func TestExecute(t *testing.T) {
	s := newArithServer(t)

	val, err := execute(s, "arith.add", []any{2.0, 3.0}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 5.0 {
		t.Errorf("add: expected 5, got %v", val)
	}

	// Whole floats convert to ints
	val, err = execute(s, "arith.div", []any{9.0, 3.0}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 3 {
		t.Errorf("div: expected 3, got %v", val)
	}

	// Fractional floats do not
	_, err = execute(s, "arith.div", []any{7.9, 2.0}, nil, false)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("div with fraction: expected ErrInvalidArgument, got %v", err)
	}

	val, err = execute(s, "arith.sum", []any{1.0, 2.0, 3.0, 4.0}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 10.0 {
		t.Errorf("sum: expected 10, got %v", val)
	}

	val, err = execute(s, "arith.sum", nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0.0 {
		t.Errorf("empty sum: expected 0, got %v", val)
	}

	val, err = execute(s, "arith.scale", []any{2.0}, map[string]any{"factor": 4.0}, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 8.0 {
		t.Errorf("scale: expected 8, got %v", val)
	}
}

func TestExecuteErrors(t *testing.T) {
	s := newArithServer(t)

	_, err := execute(s, "arith.nope", nil, nil, false)
	if !errors.Is(err, ErrNoSuchProcedure) {
		t.Errorf("expected ErrNoSuchProcedure, got %v", err)
	}

	_, err = execute(s, "arith.helper", []any{1.0}, nil, false)
	if !errors.Is(err, ErrNoSuchProcedure) {
		t.Errorf("helper: expected ErrNoSuchProcedure, got %v", err)
	}

	_, err = execute(s, "arith.add", []any{1.0}, nil, false)
	if !errors.Is(err, ErrArgCount) {
		t.Errorf("expected ErrArgCount, got %v", err)
	}

	_, err = execute(s, "arith.add", []any{1.0, "two"}, nil, false)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	_, err = execute(s, "arith.div", []any{1.0, 0.0}, nil, false)
	if err == nil || err.Error() != "division by zero" {
		t.Errorf("expected division by zero, got %v", err)
	}

	err = s.Register("util.panic", func(_ *Context) int {
		panic("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = execute(s, "util.panic", nil, nil, false)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected panic error, got %v", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	s := New()

	invalidNames := []string{"", "a..b", "1abc", "with space", "trailing."}
	for _, name := range invalidNames {
		if err := s.Register(name, func(_ *Context) {}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}

	invalidFns := []any{
		nil,
		42,
		func() {},
		func(_ context.Context) {},
		func(_ *Context) (int, int) { return 0, 0 },
		func(_ *Context) (int, int, error) { return 0, 0, nil },
	}
	for i, fn := range invalidFns {
		if err := s.Register("invalid.fn", fn); !errors.Is(err, ErrInvalidProcedure) {
			t.Errorf("fn %d: expected ErrInvalidProcedure, got %v", i, err)
		}
	}

	if err := s.RegisterReceiver("x", 42); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}

	if err := s.RegisterReceiver("", (*Arith)(nil)); !errors.Is(err, ErrInvalidType) {
		t.Errorf("nil pointer: expected ErrInvalidType, got %v", err)
	}
}

func TestCache(t *testing.T) {
	s := New()

	var calls int64
	err := s.Register("counter.next", func(_ *Context, _ ...any) int64 {
		return atomic.AddInt64(&calls, 1)
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		val, err := execute(s, "counter.next", []any{"a"}, map[string]any{"k": 1.0}, true)
		if err != nil {
			t.Fatal(err)
		}
		if val != int64(1) {
			t.Errorf("cached call %d: expected 1, got %v", i, val)
		}
	}

	// Different arguments are cached separately
	val, err := execute(s, "counter.next", []any{"b"}, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if val != int64(2) {
		t.Errorf("expected 2, got %v", val)
	}

	// Uncached calls always run
	val, err = execute(s, "counter.next", []any{"a"}, map[string]any{"k": 1.0}, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != int64(3) {
		t.Errorf("expected 3, got %v", val)
	}

	s.ClearCache()
	val, err = execute(s, "counter.next", []any{"a"}, map[string]any{"k": 1.0}, true)
	if err != nil {
		t.Fatal(err)
	}
	if val != int64(4) {
		t.Errorf("after clear: expected 4, got %v", val)
	}
}

func TestRateLimit(t *testing.T) {
	s := newArithServer(t, WithRateLimit(0.001, 1))

	if _, err := execute(s, "arith.add", []any{1.0, 1.0}, nil, false); err != nil {
		t.Fatal(err)
	}

	_, err := execute(s, "arith.add", []any{1.0, 1.0}, nil, false)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestProcedures(t *testing.T) {
	s := newArithServer(t)

	val, err := execute(s, "rpc.procedures", nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, desc := range val.([]ProcedureDesc) {
		names = append(names, desc.Name)
	}

	expected := []string{
		"arith.add", "arith.div", "arith.scale", "arith.sum",
		"rpc.cache", "rpc.describe", "rpc.get", "rpc.procedures", "rpc.release",
	}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("expected %v, got %v", expected, names)
	}

	val, err = execute(s, "rpc.describe", []any{"arith.sum"}, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	desc := val.(ProcedureDesc)
	if !desc.Variadic || !reflect.DeepEqual(desc.Args, []string{"[]float64"}) ||
		!reflect.DeepEqual(desc.Returns, []string{"float64"}) {
		t.Errorf("unexpected description %+v", desc)
	}
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Add":             "add",
		"TransformPoints": "transform_points",
		"HTTPStatus":      "http_status",
		"GetID":           "get_id",
		"already_snake":   "already_snake",
	}

	for in, expected := range cases {
		if got := snakeCase(in); got != expected {
			t.Errorf("%s: expected %s, got %s", in, expected, got)
		}
	}
}

func TestServeConnOrder(t *testing.T) {
	s := newArithServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ws, err := websocket.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), "", "http://localhost/")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	// Send every request before reading any reply
	for i := 1; i <= 5; i++ {
		req := types.NewRequest("arith.add", []any{i, 100}, nil, false)
		if err := websocket.JSON.Send(ws, req); err != nil {
			t.Fatal(err)
		}
	}
	if err := websocket.JSON.Send(ws, types.NewRequest("arith.nope", nil, nil, false)); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 5; i++ {
		var res float64
		if err := websocket.JSON.Receive(ws, &res); err != nil {
			t.Fatal(err)
		}
		if res != float64(i+100) {
			t.Errorf("reply %d: expected %d, got %v", i, i+100, res)
		}
	}

	var errReply types.ErrorReply
	if err := websocket.JSON.Receive(ws, &errReply); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errReply.Error, ErrNoSuchProcedure.Error()) {
		t.Errorf("unexpected error reply %q", errReply.Error)
	}
}

func TestHTTPCall(t *testing.T) {
	s := newArithServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	post := func(body string) (int, string) {
		res, err := http.Post(ts.URL+"/call", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()

		data, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatal(err)
		}
		return res.StatusCode, string(data)
	}

	status, body := post(`{"package":"arith.add","args":[2,3],"kwargs":{},"cache":false}`)
	if status != http.StatusOK || body != "5" {
		t.Errorf("add: got %d %s", status, body)
	}

	status, _ = post(`{"package":"arith.nope","args":[]}`)
	if status != http.StatusNotFound {
		t.Errorf("unknown procedure: expected 404, got %d", status)
	}

	status, _ = post(`{"package":"arith.add","args":[1]}`)
	if status != http.StatusBadRequest {
		t.Errorf("wrong arguments: expected 400, got %d", status)
	}

	status, _ = post(`not json`)
	if status != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", status)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `cloudrpc_server_calls_total{package="arith.add"}`) {
		t.Errorf("metrics do not contain call counter:\n%s", data)
	}
}

func TestObjects(t *testing.T) {
	s := newArithServer(t)

	err := s.Register("vec.len", func(_ *Context, v []float64) int {
		return len(v)
	})
	if err != nil {
		t.Fatal(err)
	}

	val, err := execute(s, "rpc.cache", []any{[]any{1.0, 2.0, 3.0}}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := val.(types.Reference)
	if !ok || ref.CachedObject == "" {
		t.Fatalf("expected reference, got %#v", val)
	}

	// References arrive as decoded maps
	wireRef := map[string]any{"cached_object": ref.CachedObject}

	val, err = execute(s, "vec.len", []any{wireRef}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 3 {
		t.Errorf("vec.len: expected 3, got %v", val)
	}

	factor := s.CacheObject(4.0)
	val, err = execute(s, "arith.scale", []any{2.0}, map[string]any{"factor": factor}, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != 8.0 {
		t.Errorf("scale: expected 8, got %v", val)
	}

	val, err = execute(s, "rpc.get", []any{wireRef}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(val, []any{1.0, 2.0, 3.0}) {
		t.Errorf("rpc.get: unexpected object %#v", val)
	}

	// A map with other keys is an ordinary argument
	notRef := map[string]any{"cached_object": ref.CachedObject, "x": 1.0}
	val, err = execute(s, "rpc.get", []any{notRef}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(val, notRef) {
		t.Errorf("expected map to pass through, got %#v", val)
	}

	val, err = execute(s, "rpc.release", []any{ref.CachedObject}, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if val != true {
		t.Errorf("rpc.release: expected true, got %v", val)
	}

	_, err = execute(s, "vec.len", []any{wireRef}, nil, false)
	if !errors.Is(err, ErrNoSuchObject) {
		t.Errorf("released object: expected ErrNoSuchObject, got %v", err)
	}

	_, err = execute(s, "arith.scale", []any{1.0}, map[string]any{"factor": wireRef}, false)
	if !errors.Is(err, ErrNoSuchObject) {
		t.Errorf("released kwarg: expected ErrNoSuchObject, got %v", err)
	}
}

func TestHTTPCallBodyLimit(t *testing.T) {
	s := newArithServer(t, WithMaxBodySize(64))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"package":"arith.sum","args":[` + strings.Repeat("1,", 64) + `1]}`
	res, err := http.Post(ts.URL+"/call", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", res.StatusCode)
	}

	// Bodies within the limit are still served
	res, err = http.Post(ts.URL+"/call", "application/json", strings.NewReader(`{"package":"arith.sum","args":[1,2]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}
}

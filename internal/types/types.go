package types

// Request is the envelope sent to the server for every call
type Request struct {
	Package string         `json:"package" msgpack:"package"`
	Args    []any          `json:"args" msgpack:"args"`
	Kwargs  map[string]any `json:"kwargs" msgpack:"kwargs"`
	Cache   bool           `json:"cache" msgpack:"cache"`
}

// NewRequest creates a request, replacing nil arguments with
// empty ones so the envelope always has every field populated
func NewRequest(pkg string, args []any, kwargs map[string]any, cache bool) Request {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Request{
		Package: pkg,
		Args:    args,
		Kwargs:  kwargs,
		Cache:   cache,
	}
}

// ErrorReply is the reply the reference server sends when a call fails
type ErrorReply struct {
	Error string `json:"error" msgpack:"error"`
}

// Reference points to an object stored on the server
type Reference struct {
	CachedObject string `json:"cached_object" msgpack:"cached_object"`
}

// AsReference returns the object ID if v is a reference, either
// a Reference or a decoded map holding only a cached_object string
func AsReference(v any) (string, bool) {
	switch v := v.(type) {
	case Reference:
		return v.CachedObject, true
	case map[string]any:
		if len(v) != 1 {
			return "", false
		}
		id, ok := v["cached_object"].(string)
		return id, ok
	}
	return "", false
}

package umd

import (
	"errors"
	"fmt"
	"strings"
)

// Target is an environment the wrapper can register the bundle in.
type Target string

const (
	TargetRoot      Target = "root"
	TargetAMD       Target = "amd"
	TargetCommonJS  Target = "commonjs"
	TargetCommonJS2 Target = "commonjs2"
)

var ErrMissingExternalRequest = errors.New("missing external configuration")

// MissingExternalRequestError is returned while rendering when an external
// module has no request for the environment being rendered.
type MissingExternalRequestError struct {
	Target  Target
	Request string
}

func (e *MissingExternalRequestError) Error() string {
	return fmt.Sprintf("missing external configuration for type: %s (request %q)", e.Target, e.Request)
}

func (e *MissingExternalRequestError) Unwrap() error { return ErrMissingExternalRequest }

// Accessor is a property path. The first element names the module (or global),
// the rest are properties read from it.
type Accessor []string

func (a Accessor) String() string {
	return strings.Join(a, ",")
}

// Request is how an external module is reached. Either one Path is used for
// every environment, or ByTarget gives one per environment.
type Request struct {
	Path     Accessor
	ByTarget map[Target]Accessor
}

func StringRequest(s string) Request {
	return Request{Path: Accessor{s}}
}

func (r Request) For(t Target) (Accessor, bool) {
	if r.ByTarget != nil {
		a, ok := r.ByTarget[t]
		return a, ok && len(a) > 0
	}
	return r.Path, len(r.Path) > 0
}

// Key is the plain string form of the request, when it has one. Loader maps are
// keyed by it.
func (r Request) Key() (string, bool) {
	if r.ByTarget == nil && len(r.Path) == 1 {
		return r.Path[0], true
	}
	return "", false
}

func (r Request) String() string {
	if key, ok := r.Key(); ok {
		return key
	}
	if r.ByTarget == nil {
		return r.Path.String()
	}
	parts := make([]string, 0, len(r.ByTarget))
	for _, t := range []Target{TargetRoot, TargetAMD, TargetCommonJS, TargetCommonJS2} {
		if a, ok := r.ByTarget[t]; ok {
			parts = append(parts, fmt.Sprintf("%s:%s", t, a))
		}
	}
	return strings.Join(parts, " ")
}

// ExternalModule is an external referenced by the bundle.
type ExternalModule struct {
	ID       string
	Request  Request
	Optional bool
}

// Param is the factory parameter the module is bound to.
func (m ExternalModule) Param() string {
	return "__UMD_EXTERNAL_MODULE_" + m.ID + "__"
}

// ModuleID escapes request into a string usable inside an identifier. Letters
// and digits are kept, every other byte becomes `_xx`.
func ModuleID(request string) string {
	var b strings.Builder
	for i := 0; i < len(request); i++ {
		c := request[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// ParseRequest reads a request from a decoded configuration value: a string, a
// list of strings, or a map from target to either.
func ParseRequest(v any) (Request, error) {
	switch raw := v.(type) {
	case string:
		return StringRequest(raw), nil
	case []string, []any:
		a, err := parseAccessor(raw)
		if err != nil {
			return Request{}, err
		}
		return Request{Path: a}, nil
	case map[string]any:
		byTarget := make(map[Target]Accessor, len(raw))
		for k, value := range raw {
			t := Target(k)
			switch t {
			case TargetRoot, TargetAMD, TargetCommonJS, TargetCommonJS2:
			default:
				return Request{}, fmt.Errorf("unknown request target %q", k)
			}
			a, err := parseAccessor(value)
			if err != nil {
				return Request{}, fmt.Errorf("request target %q: %w", k, err)
			}
			byTarget[t] = a
		}
		return Request{ByTarget: byTarget}, nil
	}

	return Request{}, fmt.Errorf("unsupported request %T", v)
}

func parseAccessor(v any) (Accessor, error) {
	switch raw := v.(type) {
	case string:
		return Accessor{raw}, nil
	case []string:
		return append(Accessor(nil), raw...), nil
	case []any:
		a := make(Accessor, 0, len(raw))
		for _, item := range raw {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("accessor element %v is not a string", item)
			}
			a = append(a, s)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unsupported accessor %T", v)
}

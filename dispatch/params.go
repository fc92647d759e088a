package dispatch

import (
	"fmt"
	"maps"
	"strconv"
)

// Names of parameters injected into every request.
const (
	ParamMethod        = "_method"
	ParamUserAgent     = "_userAgent"
	ParamAuthenticated = "_authenticated"
	ParamDemo          = "_demo"
)

// Params are the parameters handed to a handler.
type Params map[string]any

// Clone returns a shallow copy of the parameters.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// String returns the parameter value as a string. Single element string
// slices are unwrapped; other values are formatted with fmt.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the parameter value interpreted as a boolean.
func (p Params) Bool(key string) bool {
	return truthy(p[key])
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		ok, err := strconv.ParseBool(b)
		return err == nil && ok
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	default:
		return false
	}
}

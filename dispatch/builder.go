package dispatch

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.hackfix.me/switchboard/route"
)

// Reserved parameter names used to address the dispatcher itself. They're
// never passed to handlers.
const (
	ReservedRoute      = "route"
	ReservedID         = "id"
	ReservedEntryPoint = "eID"
)

var reservedParams = map[string]struct{}{
	ReservedRoute:      {},
	ReservedID:         {},
	ReservedEntryPoint: {},
}

// Builder assembles the RequestContext of a request.
type Builder struct{}

// Build returns the initial, unauthenticated context of req. Parameters are
// taken from the query string, merged with the body for POST and PUT
// requests. A JSON body is only decoded if the binding declares the
// application/json content type, and a malformed JSON body contributes no
// parameters. Client supplied names starting with "_" are dropped, since that
// namespace belongs to injected parameters and identity claims.
func (Builder) Build(req *Request, binding route.Binding) RequestContext {
	params := Params{}
	mergeValues(params, req.Query)

	if req.Method == http.MethodPost || req.Method == http.MethodPut {
		if isJSON(binding.ContentType) {
			var body map[string]any
			if err := json.Unmarshal(req.Body, &body); err == nil {
				for k, v := range body {
					params[k] = v
				}
			}
		} else if len(req.Body) > 0 {
			// ParseQuery returns the valid pairs even on error.
			form, _ := url.ParseQuery(string(req.Body))
			mergeValues(params, form)
		}
	}

	for k := range params {
		if _, ok := reservedParams[k]; ok || strings.HasPrefix(k, "_") {
			delete(params, k)
		}
	}

	rc := RequestContext{method: req.Method, userAgent: req.UserAgent()}

	return rc.WithParams(params)
}

func mergeValues(params Params, values url.Values) {
	for k, v := range values {
		switch len(v) {
		case 0:
			params[k] = ""
		case 1:
			params[k] = v[0]
		default:
			params[k] = append([]string(nil), v...)
		}
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

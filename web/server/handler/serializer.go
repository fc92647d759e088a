package handler

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/web/server/types"
)

// Serializer encodes the response into the raw response data.
type Serializer interface {
	Serialize(ctx context.Context, r *http.Request, resp *types.Response) (context.Context, error)
}

// JSONSerializer serializes successful responses as JSON. Error responses are
// JSON too, unless the client prefers XML.
type JSONSerializer struct{}

var _ Serializer = (*JSONSerializer)(nil)

// JSON returns a new JSON serializer.
func JSON() JSONSerializer {
	return JSONSerializer{}
}

// Serialize encodes the response and stores it in the context for writing.
// It sets the appropriate Content-Type header.
func (JSONSerializer) Serialize(ctx context.Context, r *http.Request, resp *types.Response) (context.Context, error) {
	var (
		data        []byte
		contentType = "application/json"
		err         error
	)

	switch {
	case resp.Err == nil:
		data, err = json.Marshal(resp.Data)
	case resp.Err.Kind == dispatch.KindJSONMessage:
		data, err = json.Marshal(resp.Err.Data)
	case prefersXML(r.Header.Get("Accept")):
		contentType = "application/xml"
		data, err = xml.Marshal(types.NewErrorBody(resp.Err))
		data = append([]byte(xml.Header), data...)
	default:
		data, err = json.Marshal(types.ErrorEnvelope{Error: types.NewErrorBody(resp.Err)})
	}
	if err != nil {
		return ctx, fmt.Errorf("failed marshalling response: %w", err)
	}

	ctx = setResponseData(ctx, data)
	resp.Header.Set("Content-Type", contentType+"; charset=utf-8")

	return ctx, nil
}

// prefersXML returns true if the Accept header ranks XML above JSON.
func prefersXML(accept string) bool {
	if accept == "" {
		return false
	}

	xmlQ, jsonQ := -1.0, -1.0
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if q, err = strconv.ParseFloat(qs, 64); err != nil {
				continue
			}
		}
		switch mediaType {
		case "application/xml", "text/xml":
			xmlQ = max(xmlQ, q)
		case "application/json":
			jsonQ = max(jsonQ, q)
		}
	}

	return xmlQ > 0 && xmlQ > jsonQ
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/db/models"
	"go.hackfix.me/switchboard/db/types"
	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/invalidation"
)

// RecordsID is the handler ID of Records.
const RecordsID = "records"

// ParamL10nParent is the parameter holding the ID of the record a new or
// updated record is a translation of.
const ParamL10nParent = "l10n_parent"

// Records exposes database records at <route>/<table>[/<id>]. Single records
// are served from the cache, tagged with the record and its l10n parent, so
// that writes flush them. Writes require a trusted identity.
type Records struct {
	d      types.Querier
	loader *cache.Loader
	hook   *invalidation.Hook
	ttl    time.Duration
	logger *slog.Logger
}

var _ dispatch.Handler = (*Records)(nil)

// NewRecords returns a new Records handler. Cached records expire after ttl,
// or never if ttl is 0.
func NewRecords(
	d types.Querier, loader *cache.Loader, hook *invalidation.Hook, ttl time.Duration, logger *slog.Logger,
) *Records {
	return &Records{d: d, loader: loader, hook: hook, ttl: ttl, logger: logger.With("handler", RecordsID)}
}

// Initialize implements dispatch.Handler.
func (h *Records) Initialize(context.Context) error { return nil }

// Handle implements dispatch.Handler.
func (h *Records) Handle(ctx context.Context, _, subroute string, params dispatch.Params) (any, error) {
	table, id, err := parseRecordPath(subroute)
	if err != nil {
		return nil, err
	}

	method := params.String(dispatch.ParamMethod)
	if method == "HEAD" {
		method = "GET"
	}
	if method != "GET" && (!params.Bool(dispatch.ParamAuthenticated) || params.Bool(dispatch.ParamDemo)) {
		return nil, dispatch.Forbidden("Modifying records is restricted to authenticated users.")
	}

	switch method {
	case "GET":
		if id == 0 {
			return h.list(ctx, table)
		}
		return h.get(ctx, table, id)
	case "POST", "PUT":
		if id == 0 {
			return nil, dispatch.JSONMessage(map[string]any{"error": "record ID is required"})
		}
		return h.save(ctx, table, id, params, method == "PUT")
	case "DELETE":
		if id == 0 {
			return nil, dispatch.JSONMessage(map[string]any{"error": "record ID is required"})
		}
		return h.delete(ctx, table, id)
	default:
		return nil, dispatch.MethodNotAllowed(
			fmt.Sprintf("This request does not support HTTP method %s", method))
	}
}

func (h *Records) get(ctx context.Context, table string, id uint64) (any, error) {
	key := cache.Key("records", table, strconv.FormatUint(id, 10))
	data, err := h.loader.GetOrLoad(ctx, key, []string{cache.Tag(table, id)}, h.ttl,
		func(ctx context.Context) ([]byte, error) {
			r := &models.Record{Table: table, ID: id}
			if err := r.Load(ctx, h.d); err != nil {
				return nil, err
			}
			return json.Marshal(recordView(r))
		})
	if err != nil {
		if errors.As(err, &types.NoResultError{}) {
			return nil, nil
		}
		return nil, err
	}

	return json.RawMessage(data), nil
}

// list isn't cached, since a new record has no tag that could flush the list.
func (h *Records) list(ctx context.Context, table string) (any, error) {
	records, err := models.Records(ctx, h.d, types.NewFilter("table_name = ?", []any{table}))
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, recordView(r))
	}

	return out, nil
}

func (h *Records) save(
	ctx context.Context, table string, id uint64, params dispatch.Params, update bool,
) (any, error) {
	r := &models.Record{Table: table, ID: id, Data: map[string]any{}}
	for k, v := range params {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if k == ParamL10nParent {
			parent, err := strconv.ParseUint(params.String(k), 10, 64)
			if err != nil {
				return nil, dispatch.JSONMessage(map[string]any{"error": "invalid l10n_parent"})
			}
			r.L10nParent = parent
			continue
		}
		r.Data[k] = v
	}

	if err := r.Save(ctx, h.d, update); err != nil {
		switch {
		case errors.As(err, &types.NoResultError{}):
			return nil, nil
		case errors.As(err, &types.DuplicateError{}):
			return nil, dispatch.JSONMessage(map[string]any{"error": err.Error()})
		}
		return nil, err
	}

	op := invalidation.OpCreate
	if update {
		op = invalidation.OpUpdate
	}
	if err := h.hook.RecordChanged(ctx, op, table, id, r.L10nParent); err != nil {
		return nil, err
	}
	h.logChange(ctx, op, r)

	if err := r.Load(ctx, h.d); err != nil {
		return nil, err
	}

	return recordView(r), nil
}

func (h *Records) delete(ctx context.Context, table string, id uint64) (any, error) {
	r := &models.Record{Table: table, ID: id}
	if err := r.Delete(ctx, h.d); err != nil {
		if errors.As(err, &types.NoResultError{}) {
			return nil, nil
		}
		return nil, err
	}

	if err := h.hook.RecordChanged(ctx, invalidation.OpDelete, table, id, 0); err != nil {
		return nil, err
	}
	h.logChange(ctx, invalidation.OpDelete, r)

	return map[string]any{"deleted": r.String()}, nil
}

func (h *Records) logChange(ctx context.Context, op invalidation.Op, r *models.Record) {
	attrs := []any{"op", string(op), "record", r.String()}
	if req, ok := dispatch.RequestFrom(ctx); ok {
		attrs = append(attrs, "request_id", req.ID)
	}
	h.logger.Debug("record changed", attrs...)
}

// Documentation implements dispatch.Handler.
func (h *Records) Documentation(route string) []dispatch.Doc {
	return []dispatch.Doc{
		{
			Method:      "GET",
			Path:        route + "/{table}",
			Description: "Lists the records of a table.",
			Response:    `[{"table": "...", "id": 1, "data": {}}]`,
		},
		{
			Method:      "GET",
			Path:        route + "/{table}/{id}",
			Description: "Returns a single record.",
			Response:    `{"table": "...", "id": 1, "data": {}}`,
		},
		{
			Method: "POST",
			Path:   route + "/{table}/{id}",
			Parameters: map[string]string{
				ParamL10nParent: "ID of the record this record is a translation of",
			},
			Description: "Creates a record from the request parameters. Requires authentication.",
		},
		{
			Method:      "PUT",
			Path:        route + "/{table}/{id}",
			Parameters:  map[string]string{ParamL10nParent: "ID of the translated record"},
			Description: "Replaces the data of a record. Requires authentication.",
		},
		{
			Method:      "DELETE",
			Path:        route + "/{table}/{id}",
			Description: "Deletes a record. Requires authentication.",
		},
	}
}

func parseRecordPath(subroute string) (table string, id uint64, _ error) {
	table, idStr, _ := strings.Cut(strings.Trim(subroute, "/"), "/")
	if table == "" {
		return "", 0, dispatch.NotFound("Action not found.")
	}
	if idStr == "" {
		return table, 0, nil
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return "", 0, dispatch.NotFound("Action not found.")
	}

	return table, id, nil
}

func recordView(r *models.Record) map[string]any {
	v := map[string]any{
		"table":      r.Table,
		"id":         r.ID,
		"data":       r.Data,
		"created_at": r.CreatedAt.Unix(),
		"updated_at": r.UpdatedAt.Unix(),
	}
	if r.L10nParent != 0 {
		v[ParamL10nParent] = r.L10nParent
	}
	return v
}

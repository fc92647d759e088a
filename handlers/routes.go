package handlers

import (
	"bytes"
	_ "embed"
	"log/slog"
	"time"

	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/db/types"
	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/invalidation"
	"go.hackfix.me/switchboard/route"
)

//go:embed routes.yaml
var defaultRoutes []byte

// DefaultRoutes registers the bindings of the built-in handlers in t. They're
// used when no route file is configured.
func DefaultRoutes(t *route.Table) error {
	return route.Load(bytes.NewReader(defaultRoutes), t)
}

// Register adds the built-in handlers to the registry.
func Register(
	reg *dispatch.Registry, d types.Querier, loader *cache.Loader,
	hook *invalidation.Hook, ttl time.Duration, logger *slog.Logger,
) error {
	if err := reg.Register(TokenAuthID, NewTokenAuth(d, logger)); err != nil {
		return err
	}
	return reg.Register(RecordsID, NewRecords(d, loader, hook, ttl, logger))
}

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/switchboard/route"
)

// tokenAuth accepts "good" as a regular credential and "demo" as a demo one.
var tokenAuth = HandlerFunc(func(_ context.Context, _, credential string, _ Params) (any, error) {
	switch credential {
	case "good":
		return map[string]any{"success": true, "email": "ada@example.com"}, nil
	case "demo":
		return map[string]any{"success": true, "demo": true}, nil
	case "weird":
		return "yes", nil
	case "panic":
		panic("token store unavailable")
	default:
		return map[string]any{"success": false}, nil
	}
})

type testObserver struct {
	mu        sync.Mutex
	dispatchs []string
	statuses  []int
	auths     []bool
}

func (o *testObserver) ObserveDispatch(route, _ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatchs = append(o.dispatchs, route)
	o.statuses = append(o.statuses, status)
}

func (o *testObserver) ObserveAuthentication(success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.auths = append(o.auths, success)
}

type testEnv struct {
	dispatcher *Dispatcher
	logs       *bytes.Buffer
	observer   *testObserver
	// calls records the route, subroute and params of every handler call.
	calls []call
	mu    sync.Mutex
}

type call struct {
	route, subroute string
	params          Params
	identity        Identity
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	env := &testEnv{logs: &bytes.Buffer{}, observer: &testObserver{}}

	record := func(ctx context.Context, r, s string, p Params) {
		id, ok := IdentityFrom(ctx)
		require.True(t, ok)
		env.mu.Lock()
		env.calls = append(env.calls, call{route: r, subroute: s, params: p, identity: id})
		env.mu.Unlock()
	}

	table, err := route.NewTable(
		route.Binding{Pattern: "/members/.*", Handler: "member", IsPattern: true},
		route.Binding{Pattern: "/authenticate", Handler: "auth", Methods: []string{"POST"}},
		route.Binding{Pattern: "/members", Handler: "members", Methods: []string{"GET", "POST"},
			ContentType: "application/json"},
		route.Binding{Pattern: "/membership", Handler: "members"},
		route.Binding{Pattern: "/secret", Handler: "members", Restricted: true},
		route.Binding{Pattern: "/old", Handler: "members", Deprecated: true},
		route.Binding{Pattern: "/empty", Handler: "empty"},
		route.Binding{Pattern: "/fail", Handler: "fail"},
		route.Binding{Pattern: "/cached", Handler: "cached"},
		route.Binding{Pattern: "/orphan", Handler: "missing"},
	)
	require.NoError(t, err)

	registry := NewRegistry()
	registry.MustRegister("auth", tokenAuth)
	registry.MustRegister("members", HandlerFunc(func(ctx context.Context, r, s string, p Params) (any, error) {
		record(ctx, r, s, p)
		return map[string]any{"route": r}, nil
	}))
	registry.MustRegister("member", HandlerFunc(func(ctx context.Context, r, s string, p Params) (any, error) {
		record(ctx, r, s, p)
		return map[string]any{"id": s}, nil
	}))
	registry.MustRegister("empty", HandlerFunc(func(context.Context, string, string, Params) (any, error) {
		var m map[string]any
		return m, nil
	}))
	registry.MustRegister("fail", HandlerFunc(func(_ context.Context, _, s string, _ Params) (any, error) {
		switch s {
		case "upgrade":
			return nil, UpgradeRequired("upgrade your client").WithCode(42)
		case "json":
			return nil, JSONMessage(map[string]any{"field": "name"})
		case "panic":
			panic("boom")
		default:
			return nil, errors.New("database is locked")
		}
	}))
	registry.MustRegister("cached", HandlerFunc(func(ctx context.Context, _, _ string, _ Params) (any, error) {
		SetMaxAge(ctx, 60)
		return []string{"ok"}, nil
	}))

	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(logger), WithObserver(env.observer)}, opts...)
	env.dispatcher = New(route.NewResolver(table), registry, opts...)

	return env
}

func get(path string, header ...string) *Request {
	h := http.Header{}
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}
	return &Request{Method: http.MethodGet, Path: path, Query: url.Values{}, Header: h}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		req       *Request
		expStatus int
		expKind   ErrorKind
		expMaxAge int
		expData   any
	}{
		{
			name: "ok/literal", req: get("/members"),
			expStatus: 200, expMaxAge: 86400, expData: map[string]any{"route": "/members"},
		},
		{
			name: "ok/shorter_prefix", req: get("/membership"),
			expStatus: 200, expMaxAge: 86400, expData: map[string]any{"route": "/membership"},
		},
		{
			name: "ok/pattern", req: get("/members/34"),
			expStatus: 200, expMaxAge: 86400, expData: map[string]any{"id": "34"},
		},
		{
			name: "ok/authenticated_not_cached", req: get("/members", "X-Authorization", "good"),
			expStatus: 200, expMaxAge: 0, expData: map[string]any{"route": "/members"},
		},
		{
			name: "ok/bad_credential_not_cached", req: get("/members", "X-Authorization", "bad"),
			expStatus: 200, expMaxAge: 0, expData: map[string]any{"route": "/members"},
		},
		{
			name: "ok/restricted_authenticated", req: get("/secret", "X-Authorization", "good"),
			expStatus: 200, expMaxAge: 0, expData: map[string]any{"route": "/secret"},
		},
		{
			name: "ok/max_age_override", req: get("/cached"),
			expStatus: 200, expMaxAge: 60, expData: []string{"ok"},
		},
		{
			name: "ok/max_age_override_ignored_with_credential", req: get("/cached", "X-Authorization", "good"),
			expStatus: 200, expMaxAge: 0, expData: []string{"ok"},
		},
		{name: "err/not_found", req: get("/non-existing"), expStatus: 404, expKind: KindNotFound},
		{name: "err/partial_match", req: get("/member"), expStatus: 404, expKind: KindNotFound},
		{name: "err/nil_data", req: get("/empty"), expStatus: 404, expKind: KindNotFound},
		{
			name:      "err/method_not_allowed",
			req:       &Request{Method: http.MethodDelete, Path: "/members"},
			expStatus: 405, expKind: KindMethodNotAllowed,
		},
		{name: "err/restricted_anonymous", req: get("/secret"), expStatus: 403, expKind: KindForbidden},
		{
			name: "err/restricted_bad_credential", req: get("/secret", "X-Authorization", "bad"),
			expStatus: 403, expKind: KindForbidden,
		},
		{
			name: "err/restricted_non_map_result", req: get("/secret", "X-Authorization", "weird"),
			expStatus: 403, expKind: KindForbidden,
		},
		{
			name: "err/restricted_demo", req: get("/secret", "X-Authorization", "demo"),
			expStatus: 403, expKind: KindForbidden,
		},
		{name: "err/handler_error", req: get("/fail"), expStatus: 500, expKind: KindInternal},
		{name: "err/handler_panic", req: get("/fail/panic"), expStatus: 500, expKind: KindInternal},
		{name: "err/upgrade_required", req: get("/fail/upgrade"), expStatus: 426, expKind: KindUpgradeRequired},
		{name: "err/json_message", req: get("/fail/json"), expStatus: 400, expKind: KindJSONMessage},
		{name: "err/unregistered_handler", req: get("/orphan"), expStatus: 500, expKind: KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			resp, err := env.dispatcher.Dispatch(context.Background(), tc.req)
			if tc.expKind != 0 {
				require.Error(t, err)
				var derr *Error
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, tc.expKind, derr.Kind)
				assert.Equal(t, tc.expStatus, derr.StatusCode)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expStatus, resp.StatusCode)
			assert.Equal(t, tc.expMaxAge, resp.MaxAge)
			assert.Equal(t, tc.expData, resp.Data)
		})
	}
}

func TestDispatchErrorDetails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.dispatcher.Dispatch(ctx, get("/fail/upgrade"))
	derr := AsError(err)
	assert.Equal(t, 42, derr.Code)
	assert.Equal(t, "upgrade your client", derr.Message)

	_, err = env.dispatcher.Dispatch(ctx, get("/fail/json"))
	assert.Equal(t, map[string]any{"field": "name"}, AsError(err).Data)

	_, err = env.dispatcher.Dispatch(ctx, get("/fail"))
	assert.EqualError(t, err, "database is locked")
	assert.Contains(t, env.logs.String(), `level=ERROR msg="failed dispatching request" component=dispatcher route=/fail error="database is locked"`)

	_, err = env.dispatcher.Dispatch(ctx, &Request{Method: http.MethodPut, Path: "/members"})
	assert.EqualError(t, err, "This request does not support HTTP method PUT")
}

func TestDispatchParams(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithParameterHooks(func(_ context.Context, _ *Request, p Params) (Params, error) {
		p["locale"] = "en"
		delete(p, "drop")
		return p, nil
	}))

	req := &Request{
		Method: http.MethodPost,
		Path:   "/members",
		Query:  url.Values{"drop": {"1"}, "route": {"/members"}},
		Header: http.Header{"X-Authorization": {"good"}, "User-Agent": {"curl/8"}},
		Body:   []byte(`{"name":"Ada"}`),
	}
	_, err := env.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, env.calls, 1)
	c := env.calls[0]
	assert.Equal(t, "/members", c.route)
	assert.Equal(t, "", c.subroute)
	assert.Equal(t, Params{
		"name":             "Ada",
		"locale":           "en",
		"_email":           "ada@example.com",
		ParamMethod:        "POST",
		ParamUserAgent:     "curl/8",
		ParamAuthenticated: true,
		ParamDemo:          false,
	}, c.params)

	assert.True(t, c.identity.Authenticated)
	assert.False(t, c.identity.Demo)
	email, ok := c.identity.Claim("email")
	assert.True(t, ok)
	assert.Equal(t, "ada@example.com", email)

	assert.Equal(t, []bool{true}, env.observer.auths)
}

func TestDispatchHookError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithParameterHooks(func(context.Context, *Request, Params) (Params, error) {
		return nil, Forbidden("region blocked")
	}))

	_, err := env.dispatcher.Dispatch(context.Background(), get("/members"))
	derr := AsError(err)
	assert.Equal(t, KindForbidden, derr.Kind)
	assert.Equal(t, "region blocked", derr.Message)
	assert.Empty(t, env.calls)
}

func TestDispatchAuthLogging(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, WithAuthHeader("X-Token"))
	ctx := context.Background()

	// The default header is ignored when a custom one is configured.
	resp, err := env.dispatcher.Dispatch(ctx, get("/members", "X-Authorization", "good"))
	require.NoError(t, err)
	assert.Equal(t, 86400, resp.MaxAge)

	_, err = env.dispatcher.Dispatch(ctx, get("/members", "X-Token", "nope"))
	require.NoError(t, err)
	assert.Contains(t, env.logs.String(), `level=WARN msg="invalid authentication" component=dispatcher token=nope`)

	_, err = env.dispatcher.Dispatch(ctx, get("/secret", "X-Token", "demo"))
	require.Error(t, err)
	assert.Contains(t, env.logs.String(), `level=WARN msg="access denied" component=dispatcher route=/secret role=demo`)

	assert.Equal(t, []bool{false, true}, env.observer.auths)
}

func TestDispatchWithoutAuthRoute(t *testing.T) {
	t.Parallel()

	table, err := route.NewTable(route.Binding{Pattern: "/secret", Handler: "h", Restricted: true})
	require.NoError(t, err)
	registry := NewRegistry()
	registry.MustRegister("h", HandlerFunc(func(context.Context, string, string, Params) (any, error) {
		return map[string]any{}, nil
	}))
	d := New(route.NewResolver(table), registry, WithLogger(slog.New(slog.DiscardHandler)))

	// Authentication is skipped, so the credential can't grant access.
	_, err = d.Dispatch(context.Background(), get("/secret", "X-Authorization", "good"))
	assert.Equal(t, KindForbidden, AsError(err).Kind)
}

func TestDispatchAuthPanic(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := env.dispatcher.Dispatch(context.Background(), get("/members", "X-Authorization", "panic"))
	assert.Nil(t, resp)
	require.Error(t, err)

	derr := AsError(err)
	assert.Equal(t, KindInternal, derr.Kind)
	assert.Equal(t, http.StatusInternalServerError, derr.StatusCode)
	assert.EqualError(t, err, "authentication handler panic: token store unavailable")
	assert.Contains(t, env.logs.String(),
		`level=ERROR msg="failed dispatching request" component=dispatcher route=/members error="authentication handler panic: token store unavailable"`)
	assert.Empty(t, env.calls)
	assert.Empty(t, env.observer.auths)
}

func TestDispatchDeprecated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp, err := env.dispatcher.Dispatch(context.Background(), get("/old"))
	require.NoError(t, err)
	assert.Equal(t, "true", resp.Header.Get("Deprecation"))
	assert.Contains(t, env.logs.String(), `msg="deprecated route requested"`)
}

func TestDispatchLatencyLog(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	env := newTestEnv(t, WithTimeSource(func() time.Time {
		now = now.Add(1500 * time.Microsecond)
		return now
	}))

	_, err := env.dispatcher.Dispatch(context.Background(), get("/members"))
	require.NoError(t, err)
	assert.Contains(t, env.logs.String(), `level=DEBUG msg="1.50 (ms) GET /members"`)
}

func TestDispatchObserver(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.dispatcher.Dispatch(ctx, get("/members/1"))
	_, _ = env.dispatcher.Dispatch(ctx, get("/nope"))
	_, _ = env.dispatcher.Dispatch(ctx, get("/secret"))

	assert.Equal(t, []string{"/members/.*", "", "/secret"}, env.observer.dispatchs)
	assert.Equal(t, []int{200, 404, 403}, env.observer.statuses)
}

func TestDispatchConcurrent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := get("/members/1")
			if i%2 == 0 {
				req = get("/members/1", "X-Authorization", "good")
			}
			resp, err := env.dispatcher.Dispatch(context.Background(), req)
			assert.NoError(t, err)
			if i%2 == 0 {
				assert.Equal(t, 0, resp.MaxAge)
			} else {
				assert.Equal(t, 86400, resp.MaxAge)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, env.calls, 50)
}

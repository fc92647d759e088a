package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.hackfix.me/switchboard/db/models"
)

func TestAppServe(t *testing.T) {
	t.Parallel()

	ctx, cancel, h := newTestContext(t, 10*time.Second)
	defer cancel()

	tapp, err := newTestApp(ctx, `{
		"server": {"metrics": true, "entry_point": "sb"},
		"cache": {"sweep_interval": "0"}
	}`)
	h(assert.NoError(t, err))
	h(assert.NoError(t, tapp.Run("init")))

	tokenRx := regexp.MustCompile(`(?m)^Token: (\S+)$`)
	h(assert.NoError(t, tapp.Run("token", "add", "alice")))
	editorToken := tokenRx.FindStringSubmatch(tapp.stdout.String())[1]
	h(assert.NoError(t, tapp.Run("token", "add", "guest", "--demo")))
	demoToken := tokenRx.FindStringSubmatch(tapp.stdout.String())[1]

	addrCh := make(chan string)
	tapp.stderr.waitFor(`started listener.*address=(\S+)`, 1, addrCh)

	serveCtx, cancelServe := context.WithCancel(ctx)
	tapp.ctx.Ctx = serveCtx
	errCh := make(chan error)
	go func() {
		errCh <- tapp.App.Run([]string{"serve", "127.0.0.1:0"})
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err = <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the server to start")
	}

	type result struct {
		status       int
		cacheControl string
		body         string
	}
	do := func(method, path, token, body string) result {
		t.Helper()
		var rd io.Reader
		if body != "" {
			rd = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("http://%s%s", addr, path), rd)
		h(assert.NoError(t, err))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("X-Authorization", token)
		}
		resp, err := http.DefaultClient.Do(req)
		h(assert.NoError(t, err))
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		h(assert.NoError(t, err))

		return result{status: resp.StatusCode, cacheControl: resp.Header.Get("Cache-Control"), body: string(data)}
	}

	res := do(http.MethodGet, "/records/members/34", "", "")
	assert.Equal(t, http.StatusNotFound, res.status)

	res = do(http.MethodPost, "/records/members/34", "", `{"name": "Alice"}`)
	assert.Equal(t, http.StatusForbidden, res.status)
	assert.JSONEq(t,
		`{"error": {"code": 403, "message": "Modifying records is restricted to authenticated users."}}`,
		res.body)

	res = do(http.MethodPost, "/records/members/34", demoToken, `{"name": "Alice"}`)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = do(http.MethodPost, "/records/members/34", editorToken, `{"name": "Alice"}`)
	h(assert.Equal(t, http.StatusOK, res.status, res.body))
	assert.Equal(t, "max-age=0", res.cacheControl)

	// Anonymous reads are cached, and served with the default max-age.
	res = do(http.MethodGet, "/records/members/34", "", "")
	h(assert.Equal(t, http.StatusOK, res.status, res.body))
	assert.Equal(t, "max-age=86400", res.cacheControl)
	var rec struct {
		Data map[string]any `json:"data"`
	}
	h(assert.NoError(t, json.Unmarshal([]byte(res.body), &rec)))
	assert.Equal(t, "Alice", rec.Data["name"])

	// The update flushes the cached record immediately.
	res = do(http.MethodPut, "/records/members/34", editorToken, `{"name": "Alicia"}`)
	h(assert.Equal(t, http.StatusOK, res.status, res.body))

	res = do(http.MethodGet, "/?eID=sb&route=/records/members/34", "", "")
	h(assert.Equal(t, http.StatusOK, res.status, res.body))
	h(assert.NoError(t, json.Unmarshal([]byte(res.body), &rec)))
	assert.Equal(t, "Alicia", rec.Data["name"])

	res = do(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `"/records"`)

	res = do(http.MethodGet, "/-/metrics", "", "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, `switchboard_dispatch_authentications_total{result="success"} 3`)

	cancelServe()
	select {
	case err = <-errCh:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the server to stop")
	}

	entries, err := models.CacheQueueEntries(context.Background(), tapp.ctx.DB, nil)
	h(assert.NoError(t, err))
	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		tags = append(tags, e.Tag)
	}
	assert.Equal(t, []string{"members%34", "members%34"}, tags)
}

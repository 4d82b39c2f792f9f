package server

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/entity"
	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

const intent = `{
  "id": "abc",
  "timestamp": "2019-06-01T12:00:00Z",
  "operation": "update",
  "target": "https://rudder.example.com:8443",
  "namespace": "tenant-a",
  "template": {"repository": "stable", "name": "wordpress", "version": "5.1.0"}
}`

func setup(t *testing.T) *httptest.Server {
	registry := entity.NewRegistry(release.NewEntity(release.DefaultInstancePrefix),
		eventlog.NewMemoryStore(eventlog.DefaultTags), time.Minute, log.NewNopLogger())
	t.Cleanup(registry.Stop)
	srv := httptest.NewServer(NewHandler(registry, NewRouter()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, accept string) (*http.Response, string) {
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := ioutil.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := ioutil.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(b)
}

func TestHealth(t *testing.T) {
	srv := setup(t)
	res, body := get(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body)
	assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
}

func TestSubmitThenGet(t *testing.T) {
	srv := setup(t)

	res, body := post(t, srv.URL+"/api/v1/intents", intent)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var p release.Projection
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, release.PublicPending, p.Status)
	assert.Equal(t, "oscm-abc", p.InstanceID)

	res, body = get(t, srv.URL+"/api/v1/releases/abc", "application/json")
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	var got release.Projection
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, p, got)
}

func TestUnknownReleaseIsNotFound(t *testing.T) {
	srv := setup(t)
	res, body := get(t, srv.URL+"/api/v1/releases/nope", "text/plain")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "Release not found")
}

func TestBadIntents(t *testing.T) {
	srv := setup(t)
	for name, body := range map[string]string{
		"not json": "{",
		"invalid":  `{"operation":"update","id":"abc"}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, out := post(t, srv.URL+"/api/v1/intents", body)
			assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, out)
			var e struct {
				Help string `json:"help"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &e))
			assert.NotEmpty(t, e.Help)
		})
	}
}

// The release records the failure once the scheduler gets to it.
func TestUnusableTargetIsAccepted(t *testing.T) {
	srv := setup(t)
	body := strings.Replace(intent, "https://rudder.example.com:8443", "http//bad", 1)
	res, out := post(t, srv.URL+"/api/v1/intents", body)
	require.Equal(t, http.StatusOK, res.StatusCode, out)
	var p release.Projection
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, release.PublicPending, p.Status)
	assert.Equal(t, "http//bad", p.Target)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	srv := setup(t)
	res, body := get(t, srv.URL+"/api/v2/whatever", "text/plain")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "/api/v2/whatever")
}

func TestMetrics(t *testing.T) {
	srv := setup(t)
	get(t, srv.URL+"/health", "")
	res, body := get(t, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "provisioner_request_duration_seconds")
}

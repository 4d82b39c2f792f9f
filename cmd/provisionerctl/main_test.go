package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/bus"
	transport "github.com/fluxcd/provisioner/pkg/http"
	"github.com/fluxcd/provisioner/pkg/http/client"
	"github.com/fluxcd/provisioner/pkg/release"
)

type call struct {
	route string
	vars  map[string]string
	body  []byte
}

type mockRoundTripper struct {
	router    *mux.Router
	responses map[string]interface{}
	calls     []call
}

func newMock(responses map[string]interface{}) *mockRoundTripper {
	return &mockRoundTripper{router: transport.NewAPIRouter(), responses: responses}
}

func (t *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var matched mux.RouteMatch
	status := http.StatusNotFound
	var b []byte
	if t.router.Match(req, &matched) {
		var body []byte
		if req.Body != nil {
			body, _ = ioutil.ReadAll(req.Body)
		}
		name := matched.Route.GetName()
		t.calls = append(t.calls, call{route: name, vars: matched.Vars, body: body})
		if res, ok := t.responses[name]; ok {
			b, _ = json.Marshal(res)
			status = http.StatusOK
		}
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       ioutil.NopCloser(bytes.NewReader(b)),
	}, nil
}

func run(t *testing.T, trip *mockRoundTripper, stdin string, args ...string) (string, error) {
	root := &rootOpts{
		Timeout: time.Second,
		API:     client.New(&http.Client{Transport: trip}, transport.NewAPIRouter(), "http://provisioner"),
	}
	cmd := root.Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(ioutil.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var deployed = release.Projection{
	ID:         "wordpress-42",
	Status:     release.PublicDeployed,
	InstanceID: "oscm-wordpress-42",
	Endpoints:  map[string]string{"site": "http://203.0.113.5:31000"},
}

func TestGet(t *testing.T) {
	trip := newMock(map[string]interface{}{transport.GetRelease: deployed})
	out, err := run(t, trip, "", "get", "wordpress-42")
	require.NoError(t, err)

	require.Len(t, trip.calls, 1)
	assert.Equal(t, transport.GetRelease, trip.calls[0].route)
	assert.Equal(t, "wordpress-42", trip.calls[0].vars["id"])
	assert.Contains(t, out, "status: deployed")
	assert.Contains(t, out, "instanceId: oscm-wordpress-42")
}

func TestGetJSON(t *testing.T) {
	trip := newMock(map[string]interface{}{transport.GetRelease: deployed})
	out, err := run(t, trip, "", "get", "wordpress-42", "-o", "json")
	require.NoError(t, err)
	var got release.Projection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, deployed, got)
}

func TestGetNeedsID(t *testing.T) {
	trip := newMock(nil)
	_, err := run(t, trip, "", "get")
	assert.Equal(t, errorWantedOneID, err)
	assert.Empty(t, trip.calls)
}

func TestApplyYAML(t *testing.T) {
	realNow := now
	now = func() time.Time { return time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = realNow })
	trip := newMock(map[string]interface{}{transport.SubmitIntent: release.Projection{ID: "wordpress-42", Status: release.PublicPending}})
	_, err := run(t, trip, `
id: wordpress-42
target: https://rudder.example.com:8443
namespace: tenant-a
template:
  repository: stable
  name: wordpress
  version: 5.1.0
parameters:
  replicas: 2
`, "apply", "-f", "-")
	require.NoError(t, err)

	require.Len(t, trip.calls, 1)
	assert.Equal(t, transport.SubmitIntent, trip.calls[0].route)
	var in bus.Intent
	require.NoError(t, json.Unmarshal(trip.calls[0].body, &in))
	assert.Equal(t, "wordpress-42", in.ID)
	assert.Equal(t, bus.OperationUpdate, in.Operation)
	assert.Equal(t, now(), in.Timestamp)
	assert.Equal(t, &bus.Template{Repository: "stable", Name: "wordpress", Version: "5.1.0"}, in.Template)
	assert.Equal(t, map[string]interface{}{"replicas": float64(2)}, in.Parameters)
}

func TestApplyNeedsFile(t *testing.T) {
	_, err := run(t, newMock(nil), "", "apply")
	assert.IsType(t, usageError{}, err)
}

func TestDelete(t *testing.T) {
	trip := newMock(map[string]interface{}{transport.SubmitIntent: release.Projection{ID: "wordpress-42", Status: release.PublicPending}})
	_, err := run(t, trip, "", "delete", "wordpress-42")
	require.NoError(t, err)

	require.Len(t, trip.calls, 1)
	var in bus.Intent
	require.NoError(t, json.Unmarshal(trip.calls[0].body, &in))
	assert.Equal(t, "wordpress-42", in.ID)
	assert.Equal(t, bus.OperationDelete, in.Operation)
}

func TestNotFoundIsAnError(t *testing.T) {
	_, err := run(t, newMock(nil), "", "get", "nope")
	assert.Error(t, err)
}

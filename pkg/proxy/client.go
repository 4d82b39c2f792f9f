// Package proxy is the client side of the deployment proxy, the HTTP
// service in front of each cluster's Helm installation.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	transport "github.com/fluxcd/provisioner/pkg/http"
)

// Route names of the proxy API.
const (
	InstallRelease = "InstallRelease"
	UpdateRelease  = "UpdateRelease"
	DeleteRelease  = "DeleteRelease"
	ReleaseStatus  = "ReleaseStatus"
)

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NewRoute().Name(InstallRelease).Methods("POST").Path("/api/v1/releases")
	r.NewRoute().Name(UpdateRelease).Methods("PUT").Path("/api/v1/releases")
	r.NewRoute().Name(DeleteRelease).Methods("DELETE").Path("/api/v1/releases/{name}")
	r.NewRoute().Name(ReleaseStatus).Methods("GET").Path("/api/v1/releases/{name}/{version}/status")
	return r
}

// Proxy is the deployment proxy of one cluster.
type Proxy interface {
	Install(ctx context.Context, req InstallRequest) error
	Update(ctx context.Context, req UpdateRequest) error
	Delete(ctx context.Context, name string) error
	Status(ctx context.Context, name, version string) (StatusResponse, error)
}

// Credentials are sent with every request, as HTTP basic auth.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Set(req *http.Request) {
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}

type Client struct {
	client   *http.Client
	creds    Credentials
	router   *mux.Router
	endpoint string
}

var _ Proxy = &Client{}

func New(c *http.Client, endpoint string, creds Credentials) *Client {
	return &Client{
		client:   c,
		creds:    creds,
		router:   NewRouter(),
		endpoint: endpoint,
	}
}

func (c *Client) Install(ctx context.Context, req InstallRequest) error {
	return c.methodWithResp(ctx, "POST", nil, InstallRelease, req)
}

func (c *Client) Update(ctx context.Context, req UpdateRequest) error {
	return c.methodWithResp(ctx, "PUT", nil, UpdateRelease, req)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.methodWithResp(ctx, "DELETE", nil, DeleteRelease, nil, "name", name)
}

func (c *Client) Status(ctx context.Context, name, version string) (StatusResponse, error) {
	var res StatusResponse
	err := c.methodWithResp(ctx, "GET", &res, ReleaseStatus, nil, "name", name, "version", version)
	return res, err
}

// methodWithResp encodes the body, if there is one, and decodes the
// response into dest, if given and the response is not empty.
func (c *Client) methodWithResp(ctx context.Context, method string, dest interface{}, route string, body interface{}, routeVars ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, routeVars...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)

	c.creds.Set(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBytes, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	if dest == nil || len(respBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, dest); err != nil {
		return errors.Wrap(err, "decoding response from proxy")
	}
	return nil
}

// executeRequest returns the body of a successful response. Failing to
// get or read a response is a TransportError; any other status than
// 2xx is a ResponseError.
func (c *Client) executeRequest(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: errors.Wrap(err, "reading response body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResponseError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fluxcd/provisioner/pkg/bus"
	proverr "github.com/fluxcd/provisioner/pkg/errors"
	transport "github.com/fluxcd/provisioner/pkg/http"
	"github.com/fluxcd/provisioner/pkg/release"
)

// Client talks to the provisioner API.
type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint string
}

func New(c *http.Client, router *mux.Router, endpoint string) *Client {
	return &Client{
		client:   c,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.Get(ctx, nil, transport.Health)
}

func (c *Client) GetRelease(ctx context.Context, id string) (release.Projection, error) {
	var res release.Projection
	err := c.Get(ctx, &res, transport.GetRelease, "id", id)
	return res, err
}

func (c *Client) SubmitIntent(ctx context.Context, in bus.Intent) (release.Projection, error) {
	var res release.Projection
	err := c.methodWithResp(ctx, "POST", &res, transport.SubmitIntent, in)
	return res, err
}

// --- Request helpers

// methodWithResp encodes the body as JSON and decodes the response
// into dest, if there is a response.
func (c *Client) methodWithResp(ctx context.Context, method string, dest interface{}, route string, body interface{}, pathVars ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, pathVars...)
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
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response from server")
	}
	if len(respBytes) == 0 || dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, dest); err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	return nil
}

// Get executes a get request against the provisioner, and unmarshals
// the response into dest, if not nil.
func (c *Client) Get(ctx context.Context, dest interface{}, route string, pathVars ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, pathVars...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

// executeRequest returns API errors as they are, so callers can tell
// them apart with the errors package.
func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, transport.ErrorUnauthorized
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body of error")
	}
	// Use the content type to discriminate between our own errors and
	// whatever else might be in the way
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var niceError proverr.Error
		if err := json.Unmarshal(body, &niceError); err != nil {
			return nil, errors.Wrap(err, "decoding response body of error")
		}
		// just in case it's JSON but not one of our own errors
		if niceError.Err != nil {
			return nil, &niceError
		}
	}
	return nil, errors.New(resp.Status + " " + string(body))
}

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	proverr "github.com/fluxcd/provisioner/pkg/errors"
)

func NewAPIRouter() *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().Name(Health).Methods("GET").Path("/health")
	r.NewRoute().Name(GetRelease).Methods("GET").Path("/api/v1/releases/{id}")
	r.NewRoute().Name(SubmitIntent).Methods("POST").Path("/api/v1/intents")
	r.NewRoute().Name(Metrics).Methods("GET").Path("/metrics")

	return r
}

// MakeURL builds the URL of a named route relative to the endpoint.
// The pairs are the route's path variables, e.g., "id", "abc".
func MakeURL(endpoint string, router *mux.Router, routeName string, pairs ...string) (*url.URL, error) {
	if len(pairs)%2 != 0 {
		panic("route variables must come in pairs")
	}

	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing endpoint %s", endpoint)
	}
	route := router.Get(routeName)
	if route == nil {
		return nil, errors.New("no route with name " + routeName)
	}
	routeURL, err := route.URLPath(pairs...)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieving route path %s", routeName)
	}

	endpointURL.Path = path.Join(endpointURL.Path, routeURL.Path)
	return endpointURL, nil
}

func WriteError(w http.ResponseWriter, r *http.Request, code int, err error) {
	// Clients that can decode JSON errors say so in the Accept
	// header; everyone else gets the help text.
	if len(r.Header.Get("Accept")) > 0 {
		switch negotiateContentType(r, []string{contentTypeJSON, contentTypeText}) {
		case contentTypeJSON:
			body, encodeErr := json.Marshal(err)
			if encodeErr != nil {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, "Error encoding error response: %s\n\nOriginal error: %s", encodeErr.Error(), err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(code)
			w.Write(body)
			return
		case contentTypeText:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(code)
			if perr, ok := err.(*proverr.Error); ok {
				fmt.Fprint(w, perr.Help)
			} else {
				fmt.Fprint(w, err.Error())
			}
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprint(w, err.Error())
}

func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ErrorResponse writes the error with the status code its type calls
// for; errors of no particular type are server errors.
func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	outErr, ok := errors.Cause(apiError).(*proverr.Error)
	if !ok {
		outErr = proverr.CoverAllError(apiError)
	}
	var code int
	switch outErr.Type {
	case proverr.Missing:
		code = http.StatusNotFound
	case proverr.User:
		code = http.StatusUnprocessableEntity
	default:
		code = http.StatusInternalServerError
	}
	WriteError(w, r, code, outErr)
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaveworks/common/middleware"

	"github.com/fluxcd/provisioner/pkg/bus"
	proverr "github.com/fluxcd/provisioner/pkg/errors"
	transport "github.com/fluxcd/provisioner/pkg/http"
	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/release"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "provisioner",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{provmetrics.LabelMethod, provmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// NewRouter is the API router, with requests for anything else
// answered as not found.
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()
	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})
	return r
}

func NewHandler(entities release.Entities, r *mux.Router) http.Handler {
	handle := HTTPServer{entities}

	r.Get(transport.Health).HandlerFunc(handle.Health)
	r.Get(transport.GetRelease).HandlerFunc(handle.GetRelease)
	r.Get(transport.SubmitIntent).HandlerFunc(handle.SubmitIntent)
	r.Get(transport.Metrics).Handler(promhttp.Handler())

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	entities release.Entities
}

func (s HTTPServer) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s HTTPServer) GetRelease(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.entities.Ask(r.Context(), id, release.GetRelease{})
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	if state.Status == release.StatusNone {
		transport.ErrorResponse(w, r, proverr.MissingRelease(id))
		return
	}
	transport.JSONResponse(w, r, state.Projection())
}

// SubmitIntent accepts an intent the same as if it had come from the
// bus, and answers with the projection of the release after it.
func (s HTTPServer) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var in bus.Intent
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		transport.ErrorResponse(w, r, transport.MakeBadRequest(err))
		return
	}
	state, err := bus.Dispatch(r.Context(), s.entities, in)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, state.Projection())
}

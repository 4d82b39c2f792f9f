package proxy

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	hapi_release "k8s.io/helm/pkg/proto/hapi/release"
)

// InstallRequest asks the proxy to install a chart as a new release.
type InstallRequest struct {
	Name       string                 `json:"name"`
	Namespace  string                 `json:"namespace"`
	Repository string                 `json:"repo"`
	Chart      string                 `json:"chart"`
	Version    string                 `json:"version"`
	Values     map[string]interface{} `json:"values,omitempty"`
}

// UpdateRequest asks the proxy to upgrade an existing release.
type UpdateRequest struct {
	Name       string                 `json:"name"`
	Repository string                 `json:"repo"`
	Chart      string                 `json:"chart"`
	Version    string                 `json:"version"`
	Values     map[string]interface{} `json:"values,omitempty"`
}

// StatusResponse is what the proxy reports about a release.
type StatusResponse struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Info      Info   `json:"info"`
}

type Info struct {
	Status        Status     `json:"status"`
	FirstDeployed *Timestamp `json:"first_deployed,omitempty"`
	LastDeployed  *Timestamp `json:"last_deployed,omitempty"`
	Deleted       *Timestamp `json:"deleted,omitempty"`
}

// Status carries the Helm status code of the release, and the
// resources listing it was deployed with.
type Status struct {
	Code      hapi_release.Status_Code `json:"code"`
	Resources string                   `json:"resource"`
	Notes     string                   `json:"notes,omitempty"`
}

// UnmarshalJSON accepts the status code as a number, or by name as
// protobuf JSON renders enums.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code      json.RawMessage `json:"code"`
		Resources string          `json:"resource"`
		Notes     string          `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Resources = raw.Resources
	s.Notes = raw.Notes
	s.Code = hapi_release.Status_UNKNOWN
	if len(raw.Code) == 0 || string(raw.Code) == "null" {
		return nil
	}

	var name string
	if err := json.Unmarshal(raw.Code, &name); err == nil {
		code, ok := hapi_release.Status_Code_value[name]
		if !ok {
			return errors.Errorf("unknown status code %q", name)
		}
		s.Code = hapi_release.Status_Code(code)
		return nil
	}
	var code int32
	if err := json.Unmarshal(raw.Code, &code); err != nil {
		return errors.Wrap(err, "decoding status code")
	}
	s.Code = hapi_release.Status_Code(code)
	return nil
}

// Timestamp is a point in time as the proxy renders it: either an
// RFC3339 string, or a protobuf timestamp object.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.Wrap(err, "parsing timestamp")
		}
		t.Time = parsed
		return nil
	}
	var pb struct {
		Seconds json.Number `json:"seconds"`
		Nanos   int64       `json:"nanos"`
	}
	if err := json.Unmarshal(data, &pb); err != nil {
		return errors.Wrap(err, "decoding timestamp")
	}
	var secs int64
	if pb.Seconds != "" {
		var err error
		if secs, err = strconv.ParseInt(string(pb.Seconds), 10, 64); err != nil {
			return errors.Wrap(err, "decoding timestamp seconds")
		}
	}
	t.Time = time.Unix(secs, pb.Nanos).UTC()
	return nil
}

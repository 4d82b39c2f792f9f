package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Representation of errors in the API. These are divided into a small
// number of categories, essentially distinguished by whose fault the
// error is; i.e., is this error:
//  - a transient problem with the service, so worth trying again?
//  - about something that does not exist (e.g., an unknown release)?
//  - not going to work until the caller changes the request?
type Error struct {
	Type Type
	// a message that can be printed out for the user
	Help string `json:"help"`
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

type Type string

const (
	// The operation looked fine on paper, but something went wrong
	Server Type = "server"
	// The thing you mentioned, whatever it is, just doesn't exist
	Missing Type = "missing"
	// The operation was malformed, e.g., an intent without an id or
	// with an unknown operation
	User Type = "user"
)

func IsMissing(err error) bool {
	if err, ok := err.(*Error); ok && err.Type == Missing {
		return true
	}
	return false
}

func IsUser(err error) bool {
	if err, ok := err.(*Error); ok && err.Type == User {
		return true
	}
	return false
}

// MissingRelease is returned when a release id has never been seen.
func MissingRelease(id string) *Error {
	return &Error{
		Type: Missing,
		Help: `Release not found

No release with the id ` + id + ` has been submitted to this
provisioner. Check the id, or submit an intent for it first.
`,
		Err: fmt.Errorf("release %s not found", id),
	}
}

// InvalidIntent wraps a validation failure of an inbound intent.
func InvalidIntent(err error) *Error {
	return &Error{
		Type: User,
		Help: `Invalid intent

The intent was rejected before reaching the release:

    ` + err.Error() + `

An update needs an id, a target URL, a namespace and a chart template
with a semantic version; a delete needs only the id.
`,
		Err: err,
	}
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	}
	return json.Marshal(jsonable)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{}
	if err := json.Unmarshal(data, &jsonable); err != nil {
		return err
	}
	e.Type = Type(jsonable.Type)
	e.Help = jsonable.Help
	if jsonable.Err != "" {
		e.Err = errors.New(jsonable.Err)
	}
	return nil
}

func CoverAllError(err error) *Error {
	return &Error{
		Type: Server,
		Err:  err,
		Help: `Error: ` + err.Error() + `

We don't have a specific help message for the error above. The
provisioner logs will usually carry more detail, keyed by release id.
`,
	}
}

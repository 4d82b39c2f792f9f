package http

import (
	"errors"

	proverr "github.com/fluxcd/provisioner/pkg/errors"
)

var ErrorUnauthorized = &proverr.Error{
	Type: proverr.User,
	Help: `The request failed authentication

The server at the address given refused the request. Check that the
address is that of a provisioner, and that nothing in between (e.g.,
an ingress or proxy) requires credentials you have not supplied.
`,
	Err: errors.New("request failed authentication"),
}

func MakeAPINotFound(path string) *proverr.Error {
	return &proverr.Error{
		Type: proverr.Missing,
		Help: `The API endpoint requested is not supported by this server.

This indicates that your client (probably provisionerctl) is either
out of date, or pointed at the wrong address. The path requested was

    ` + path + `
`,
		Err: errors.New("API endpoint not found"),
	}
}

// MakeBadRequest is for request bodies that cannot be decoded at all.
func MakeBadRequest(err error) *proverr.Error {
	return &proverr.Error{
		Type: proverr.User,
		Help: `The request body could not be decoded

    ` + err.Error() + `

Request bodies are JSON documents.
`,
		Err: err,
	}
}

package http

import (
	"net/http"
	"sort"

	"github.com/golang/gddo/httputil/header"
)

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain"
)

// negotiateContentType picks the response content type from those
// offered, in order of preference. Higher quality in the Accept header
// wins; among equal quality, the earlier offer wins. With no Accept
// header the first offer is used; with no match, "".
func negotiateContentType(r *http.Request, offers []string) string {
	specs := header.ParseAccept(r.Header, "Accept")
	if len(specs) == 0 {
		return offers[0]
	}

	var acceptable []header.AcceptSpec
	for _, spec := range specs {
		if rank(offers, spec.Value) < len(offers) {
			acceptable = append(acceptable, spec)
		}
	}
	if len(acceptable) == 0 {
		return ""
	}
	sort.SliceStable(acceptable, func(i, j int) bool {
		a, b := acceptable[i], acceptable[j]
		if a.Q != b.Q {
			return a.Q > b.Q
		}
		return rank(offers, a.Value) < rank(offers, b.Value)
	})
	return acceptable[0].Value
}

// rank is the position of the content type among the offers, or
// len(offers) if it is not offered.
func rank(offers []string, contentType string) int {
	for i, o := range offers {
		if o == contentType {
			return i
		}
	}
	return len(offers)
}

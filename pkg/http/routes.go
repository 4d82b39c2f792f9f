package http

// Route names of the provisioner API.
const (
	Health       = "Health"
	GetRelease   = "GetRelease"
	SubmitIntent = "SubmitIntent"
	Metrics      = "Metrics"
)

package metrics

/*
Labels and so on for metrics used in the provisioner.
*/

const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelSuccess = "success"

	// Labels for release metrics
	LabelCommand  = "command"
	LabelStatus   = "status"
	LabelOutcome  = "outcome"
	LabelConsumer = "consumer"
)

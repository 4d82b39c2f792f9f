package main

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fluxcd/provisioner/pkg/bus"
)

type applyOpts struct {
	*rootOpts
	file   string
	output string
}

func newApply(parent *rootOpts) *applyOpts {
	return &applyOpts{rootOpts: parent}
}

func (opts *applyOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "submit an intent, read from a YAML or JSON file",
		Example: makeExample(
			"provisionerctl apply -f wordpress.yaml",
			"cat wordpress.json | provisionerctl apply -f -",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `file holding the intent, or "-" for stdin`)
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputYAML, outputFormatFlagHelp())
	return cmd
}

func (opts *applyOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if opts.file == "" {
		return newUsageError("please supply the intent with --file")
	}

	var (
		data []byte
		err  error
	)
	if opts.file == "-" {
		data, err = ioutil.ReadAll(cmd.InOrStdin())
	} else {
		data, err = ioutil.ReadFile(opts.file)
	}
	if err != nil {
		return errors.Wrap(err, "reading intent")
	}
	in, err := parseIntent(data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	p, err := opts.API.SubmitIntent(ctx, in)
	if err != nil {
		return err
	}
	return printAs(cmd.OutOrStdout(), opts.output, p)
}

// parseIntent reads an intent in YAML, which includes JSON. An update
// without a timestamp is stamped now.
func parseIntent(data []byte) (bus.Intent, error) {
	var in bus.Intent
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return in, errors.Wrap(err, "parsing intent")
	}
	if err := json.Unmarshal(j, &in); err != nil {
		return in, errors.Wrap(err, "decoding intent")
	}
	if in.Operation == "" {
		in.Operation = bus.OperationUpdate
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = now()
	}
	return in, nil
}

var now = func() time.Time { return time.Now().UTC() }

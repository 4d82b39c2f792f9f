package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fluxcd/provisioner/pkg/bus"
)

type deleteOpts struct {
	*rootOpts
	output string
}

func newDelete(parent *rootOpts) *deleteOpts {
	return &deleteOpts{rootOpts: parent}
}

func (opts *deleteOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <release id>",
		Short: "ask for a release to be removed",
		Example: makeExample(
			"provisionerctl delete wordpress-42",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputYAML, outputFormatFlagHelp())
	return cmd
}

func (opts *deleteOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneID
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	p, err := opts.API.SubmitIntent(ctx, bus.Intent{
		ID:        args[0],
		Timestamp: now(),
		Operation: bus.OperationDelete,
	})
	if err != nil {
		return err
	}
	return printAs(cmd.OutOrStdout(), opts.output, p)
}

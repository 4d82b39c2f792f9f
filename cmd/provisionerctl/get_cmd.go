package main

import (
	"context"

	"github.com/spf13/cobra"
)

type getOpts struct {
	*rootOpts
	output string
}

func newGet(parent *rootOpts) *getOpts {
	return &getOpts{rootOpts: parent}
}

func (opts *getOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <release id>",
		Short: "show a release as the provisioner sees it",
		Example: makeExample(
			"provisionerctl get wordpress-42",
			"provisionerctl get wordpress-42 --output=json",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputYAML, outputFormatFlagHelp())
	return cmd
}

func (opts *getOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errorWantedOneID
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	p, err := opts.API.GetRelease(ctx, args[0])
	if err != nil {
		return err
	}
	return printAs(cmd.OutOrStdout(), opts.output, p)
}

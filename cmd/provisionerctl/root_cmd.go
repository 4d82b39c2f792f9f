package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	transport "github.com/fluxcd/provisioner/pkg/http"
	"github.com/fluxcd/provisioner/pkg/http/client"
)

const (
	EnvVariableURL = "PROVISIONER_URL"
	defaultURL     = "http://localhost:3030"
)

type rootOpts struct {
	URL     string
	Timeout time.Duration
	API     *client.Client
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
provisionerctl talks to a provisioner, to submit intents and look at
the releases they lead to.

Workflow:
  provisionerctl apply -f wordpress.yaml   # Install or update a release
  provisionerctl get wordpress-42          # How is it doing?
  provisionerctl delete wordpress-42       # Remove it again
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "provisionerctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", defaultURL,
		fmt.Sprintf("base URL of the provisioner API; you can also set the environment variable %s", EnvVariableURL))
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "global command timeout")

	cmd.AddCommand(
		newGet(opts).Command(),
		newApply(opts).Command(),
		newDelete(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	// a client given already, e.g., in tests, is kept
	if opts.API != nil {
		return nil
	}
	url := os.Getenv(EnvVariableURL)
	if cmd.Flags().Changed("url") || url == "" {
		url = opts.URL
	}
	if url == "" {
		return newUsageError("please supply the URL of the provisioner with --url or " + EnvVariableURL)
	}
	opts.API = client.New(&http.Client{Timeout: opts.Timeout}, transport.NewAPIRouter(), url)
	return nil
}

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, ex := range examples {
		buf.WriteString("  " + ex + "\n")
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

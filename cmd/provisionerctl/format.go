package main

import (
	"encoding/json"
	"io"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

const (
	outputYAML = "yaml"
	outputJSON = "json"
)

func outputFormatFlagHelp() string {
	return `The format to output ("yaml" or "json")`
}

// printAs writes v in the output format. YAML keeps the field names
// of the JSON encoding.
func printAs(out io.Writer, format string, v interface{}) error {
	var (
		bytes []byte
		err   error
	)
	switch format {
	case outputYAML:
		bytes, err = yaml.Marshal(v)
	case outputJSON:
		bytes, err = json.MarshalIndent(v, "", "  ")
		bytes = append(bytes, '\n')
	default:
		return errorInvalidOutputFormat
	}
	if err != nil {
		return errors.Wrap(err, "marshalling to output format "+format)
	}
	_, err = out.Write(bytes)
	return err
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/ortbind/ort"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model.onnx>",
		Short: "Print a model's inputs, outputs, and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := applyLibraryPath(activeCfg); err != nil {
				return err
			}

			session, err := ort.BuildSession(args[0], ort.NewSessionConfig())
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()

			meta := session.Metadata()
			_, _ = fmt.Fprintf(os.Stdout, "producer:    %s\n", meta.ProducerName)
			_, _ = fmt.Fprintf(os.Stdout, "graph:       %s\n", meta.GraphName)
			if meta.Domain != "" {
				_, _ = fmt.Fprintf(os.Stdout, "domain:      %s\n", meta.Domain)
			}
			if meta.Description != "" {
				_, _ = fmt.Fprintf(os.Stdout, "description: %s\n", meta.Description)
			}
			_, _ = fmt.Fprintf(os.Stdout, "version:     %d\n", meta.Version)
			for _, key := range meta.CustomKeys {
				_, _ = fmt.Fprintf(os.Stdout, "custom key:  %s\n", key)
			}

			printIOSpecs("inputs", session.Inputs())
			printIOSpecs("outputs", session.Outputs())
			return nil
		},
	}
}

func printIOSpecs(heading string, specs []ort.IOSpec) {
	_, _ = fmt.Fprintf(os.Stdout, "\n%s:\n", heading)
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, spec := range specs {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", spec.Name, spec.Type, spec.ElementType, spec.Shape)
	}
	_ = w.Flush()
}

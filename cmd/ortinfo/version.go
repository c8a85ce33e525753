package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/ortbind/ort"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loaded ONNX Runtime version",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := applyLibraryPath(activeCfg); err != nil {
				return err
			}

			version, err := ort.RuntimeVersion()
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "onnxruntime: %s\n", version)
			_, _ = fmt.Fprintf(os.Stdout, "c api:       %d\n", ort.ORTAPIVersion)
			_, _ = fmt.Fprintf(os.Stdout, "library:     %s\n", ort.LibraryPath())
			return nil
		},
	}
}

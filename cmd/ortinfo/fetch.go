package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/ortbind/ort"
)

func newFetchCmd() *cobra.Command {
	var checksum string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download and install the runtime shared library",
		RunE: func(_ *cobra.Command, _ []string) error {
			opts := bootstrapOptions(activeCfg)
			if checksum != "" {
				opts = append(opts, ort.WithBootstrapExpectedSHA256(checksum))
			}

			path, err := ort.EnsureRuntimeSharedLibrary(opts...)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(os.Stdout, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&checksum, "sha256", "", "Expected SHA-256 of the downloaded archive")

	return cmd
}

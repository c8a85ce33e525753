package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amikos-tech/ortbind/ort"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the execution providers compiled into the runtime",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := applyLibraryPath(activeCfg); err != nil {
				return err
			}

			providers, err := ort.AvailableProviders()
			if err != nil {
				return err
			}

			for _, p := range providers {
				_, _ = fmt.Fprintln(os.Stdout, p)
			}
			return nil
		},
	}
}

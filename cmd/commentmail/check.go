package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/internal/platform"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		app, err := platform.New(cfg, platform.WithLogger(logger))
		if err != nil {
			return err
		}
		defer app.Close()

		failed := 0
		out := cmd.OutOrStdout()
		for _, r := range app.Check(cmd.Context()) {
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "FAIL  %s: %v\n", r.Name, r.Err)
				continue
			}
			fmt.Fprintf(out, "ok    %s\n", r.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/pkg/adapters/sqlite"
	"github.com/aretw0/commentmail/pkg/core"
)

var (
	deliveriesLimit int
	deliveriesJSON  bool
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "List recent delivery outcomes",
	Long:  `List the newest outcomes recorded in the delivery log (delivery.log_path).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Delivery.LogPath == "" {
			return errors.New("no delivery log configured")
		}

		dl, err := sqlite.Open(cfg.Delivery.LogPath, logger)
		if err != nil {
			return err
		}
		defer dl.Close()

		outcomes, err := dl.Recent(cmd.Context(), deliveriesLimit)
		if err != nil {
			return err
		}

		if deliveriesJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(outcomes)
		}

		sent, err := dl.CountByStatus(cmd.Context(), core.DeliverySent)
		if err != nil {
			return err
		}
		failed, err := dl.CountByStatus(cmd.Context(), core.DeliveryFailed)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d sent, %d failed\n", sent, failed)
		for _, o := range outcomes {
			line := fmt.Sprintf("%s  %-6s  %s  %s", o.At.Format(time.RFC3339), o.Status, strings.Join(o.Recipients, ","), o.Subject)
			if o.Reason != "" {
				line += "  (" + o.Reason + ")"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveriesCmd)
	deliveriesCmd.Flags().IntVarP(&deliveriesLimit, "limit", "n", 20, "Number of outcomes to show")
	deliveriesCmd.Flags().BoolVar(&deliveriesJSON, "json", false, "Output in JSON format")
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/internal/platform"
	"github.com/aretw0/commentmail/pkg/core"
)

var (
	notifyKind    string
	notifyDryRun  bool
	notifyPublish bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify [document] [comment]",
	Short: "Replay the events of one comment",
	Long: `Raise the events a wiki emits when a comment is added or updated and run
them through the configured triggers. The document is a reference such as
"Main.WebHome" or "xwiki:Main.WebHome"; the comment is its number.

With --dry-run the messages are printed instead of sent. With --publish the
events go to the Kafka topic instead of the local triggers.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil || number < 0 {
			return fmt.Errorf("invalid comment number %q", args[1])
		}
		if notifyDryRun && notifyPublish {
			return fmt.Errorf("--dry-run and --publish are mutually exclusive")
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		opts := []platform.Option{platform.WithLogger(logger)}
		preview := &platform.PreviewSender{}
		if notifyDryRun {
			opts = append(opts, platform.WithSender(preview))
		}
		app, err := platform.New(cfg, opts...)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		events, err := app.ReplayEvents(ctx, args[0], number, core.EventKind(notifyKind))
		if err != nil {
			return err
		}

		if notifyPublish {
			if err := app.Publish(ctx, events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d events.\n", len(events))
			return nil
		}

		app.Dispatch(ctx, events)
		app.Wait()

		if notifyDryRun {
			out := cmd.OutOrStdout()
			msgs := preview.Messages()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No notification would be sent.")
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "To: %s\nSubject: %s\n\n%s\n\n", strings.Join(m.Recipients, ", "), m.Subject, m.Body)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringVar(&notifyKind, "kind", string(core.EventAdded), "Event kind: added or updated")
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "Print messages instead of sending them")
	notifyCmd.Flags().BoolVar(&notifyPublish, "publish", false, "Publish the events to Kafka")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/internal/platform"
)

var (
	commentAuthor  string
	commentReplyTo int
)

var commentCmd = &cobra.Command{
	Use:   "comment [document] [text]",
	Short: "Add a comment to a document in the store",
	Long: `Append a comment object to a document, the way the wiki does when someone
comments. A running "serve" picks the edit up and sends the notifications.
Fails when store.read_only is set.`,
	Args: cobra.ExactArgs(2),
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

		var replyTo *int
		if cmd.Flags().Changed("reply-to") {
			if commentReplyTo < 0 {
				return fmt.Errorf("invalid --reply-to %d", commentReplyTo)
			}
			replyTo = &commentReplyTo
		}

		ref, err := app.AddComment(cmd.Context(), args[0], commentAuthor, args[1], replyTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", ref)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commentCmd)
	commentCmd.Flags().StringVar(&commentAuthor, "author", "XWiki.Admin", "User document of the commenter")
	commentCmd.Flags().IntVar(&commentReplyTo, "reply-to", 0, "Number of the comment being answered")
}

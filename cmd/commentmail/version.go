package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of commentmail",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("commentmail version %s\n", strings.TrimSpace(commentmail.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Package cmd implements the quill command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill - a blog platform server with an AI assistant",
	Long: `Quill serves a blog platform over a JSON API: posts, comments, tags,
authors, social login, image uploads, and an "ask the blog" chat endpoint
that answers reader questions from the published posts.

Run 'quill serve' to start the server, 'quill migrate' to apply database
migrations.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

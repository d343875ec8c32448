package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Memory dynamics and retrieval ranking engine",
	Long:  "Mnemo tracks how memories strengthen with use and fade with neglect, gates writes against what is already known, and assembles ranked context for conversations.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(resolveCmd)
}

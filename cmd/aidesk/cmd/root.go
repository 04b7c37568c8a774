package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/aidesk/aidesk/cmd/aidesk/cmd.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"        _     _           _\n" +
		"   __ _(_) __| | ___  ___| | __\n" +
		"  / _` | |/ _` |/ _ \\/ __| |/ /\n" +
		" | (_| | | (_| |  __/\\__ \\   <\n" +
		"  \\__,_|_|\\__,_|\\___||___/_|\\_\\\n"
)

var rootCmd = &cobra.Command{
	Use:   "aidesk",
	Short: "aidesk - conversational agent service",
	Long:  color.CyanString(logo) + "\nA tool-using conversational agent with an OpenAI-compatible HTTP API.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(tokenServiceCmd)
}

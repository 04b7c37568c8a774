package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aidesk version",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ aidesk Version")
		fmt.Println(version)
	},
}

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	Run:   runTools,
}

func runTools(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	for _, def := range rt.registry.Definitions() {
		fmt.Printf("%s — %s\n", color.CyanString(def.Name), def.Description)
		for pname, spec := range def.Parameters {
			req := ""
			if spec.Required {
				req = color.YellowString(" (required)")
			}
			fmt.Printf("    %s: %s%s\n", pname, spec.Description, req)
		}
	}
}

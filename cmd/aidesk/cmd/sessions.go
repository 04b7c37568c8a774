package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionsClearID string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or clear stored sessions",
	Run:   runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsClearID, "clear", "", "Clear the session with this ID")
}

func runSessions(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if sessionsClearID != "" {
		if rt.sessions.Clear(sessionsClearID) {
			fmt.Printf("Session %s cleared.\n", sessionsClearID)
		} else {
			fmt.Printf("No session named %s.\n", sessionsClearID)
		}
		return
	}

	infos := rt.sessions.List()
	if len(infos) == 0 {
		fmt.Println("No stored sessions.")
		return
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %d messages  (updated %s)\n",
			color.CyanString(info.ID),
			info.CreatedAt.Format("2006-01-02 15:04"),
			info.Messages,
			info.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
}

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aidesk/aidesk/internal/agent"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	chatMessage   string
	chatSessionID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "cli:default", "Session ID")
}

func runChat(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	ctx := context.Background()
	a := rt.sessions.Get(chatSessionID)
	opts := rt.defaultOptions()

	// One-shot mode.
	if chatMessage != "" {
		fmt.Println(runTurn(ctx, rt, a, chatMessage, opts))
		return
	}

	printHeader("🤖 aidesk Chat")
	fmt.Printf("Model: %s | Session: %s\n", rt.cfg.Model.Name, chatSessionID)
	fmt.Println("Type /exit to quit, /clear to reset the conversation, /history to review it.")

	prompt := color.New(color.FgGreen, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt.Print("\nyou> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			return
		case "/clear":
			rt.sessions.Clear(chatSessionID)
			a = rt.sessions.Get(chatSessionID)
			fmt.Println("会话已清空。")
			continue
		case "/history":
			for _, msg := range a.History() {
				role := color.YellowString(msg.Role)
				if msg.Role == "assistant" {
					role = color.CyanString(msg.Role)
				}
				fmt.Printf("[%s] %s\n", role, msg.Content)
			}
			continue
		}

		fmt.Println(runTurn(ctx, rt, a, line, opts))
	}
}

// runTurn streams one turn, echoing intermediate events as they arrive,
// and returns the final answer.
func runTurn(ctx context.Context, rt *runtime, a *agent.Agent, message string, opts agent.ProcessOptions) string {
	dim := color.New(color.Faint)
	answer := ""
	for ev := range a.ProcessStream(ctx, message, opts) {
		switch ev.Type {
		case agent.EventStepStart:
			dim.Printf("⚙ %s\n", ev.Content)
		case agent.EventError:
			color.Red("✗ %s", ev.Content)
		case agent.EventResponse:
			answer = ev.Content
		}
	}
	if err := rt.sessions.Save(a.SessionID()); err != nil {
		rt.logger.Warn("session save failed", "session", a.SessionID(), "error", err)
	}
	return "\n" + answer
}

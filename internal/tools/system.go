package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// DenyPatterns contains regex patterns for dangerous commands.
var DenyPatterns = []string{
	`\brm\s+(-[rf]+\s+)*[/~]`, // rm with root or home
	`\brm\s+-rf\b`,            // rm -rf anywhere
	`\brm\s+-r[fF]?\s+\*`,     // rm -r *
	`\bdd\b.*\bof=/dev/`,      // dd to device
	`\bmkfs\b`,                // filesystem format
	`\bfdisk\b`,               // partition tool
	`>\s*/dev/`,               // redirect to device
	`\bchmod\s+-R\s+777\b`,    // chmod 777 recursive
	`\b:(){ :|:& };:\b`,       // fork bomb
	`\bshutdown\b`,            // shutdown
	`\breboot\b`,              // reboot
	`\bhalt\b`,                // halt
	`\binit\s+[0-6]\b`,        // init level change
}

// CommandOutput is the payload shape returned by the system command tool.
type CommandOutput struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// SystemCommandTool executes shell commands.
type SystemCommandTool struct {
	Timeout     time.Duration
	WorkDir     string
	denyRegexes []*regexp.Regexp
}

// NewSystemCommandTool creates a new SystemCommandTool.
func NewSystemCommandTool(timeout time.Duration, workDir string) *SystemCommandTool {
	denyRegexes := make([]*regexp.Regexp, 0, len(DenyPatterns))
	for _, pattern := range DenyPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			denyRegexes = append(denyRegexes, re)
		}
	}
	return &SystemCommandTool{
		Timeout:     timeout,
		WorkDir:     workDir,
		denyRegexes: denyRegexes,
	}
}

func (t *SystemCommandTool) Definition() Definition {
	return Definition{
		Name:        "system_command",
		Description: "Execute a shell command and return stdout, stderr and the exit code.",
		Parameters: map[string]ParamSpec{
			"command": {
				Type:        "string",
				Description: "The shell command to execute",
				Required:    true,
			},
		},
		Examples: []string{
			`{"tool_name": "system_command", "parameters": {"command": "ls -la"}}`,
		},
	}
}

func (t *SystemCommandTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	command := GetString(params, "command", "")

	for _, re := range t.denyRegexes {
		if re.MatchString(command) {
			return CommandOutput{
				Stderr:     fmt.Sprintf("command refused by safety policy: %s", command),
				ReturnCode: 1,
			}, nil
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if t.WorkDir != "" {
		cmd.Dir = t.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return CommandOutput{
			Stdout:     stdout.String(),
			Stderr:     fmt.Sprintf("command timed out after %v", timeout),
			ReturnCode: -1,
		}, nil
	}

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return CommandOutput{
				Stderr:     fmt.Sprintf("command failed to start: %v", err),
				ReturnCode: -1,
			}, nil
		}
	}

	return CommandOutput{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ReturnCode: code,
	}, nil
}

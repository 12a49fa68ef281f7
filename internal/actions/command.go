package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// RunCommandParams names a whitelisted command to execute.
type RunCommandParams struct {
	Command string `json:"command" validate:"required"`
}

type allowedCommand struct {
	args []string
	desc string
}

// allowedCommands is the closed set of safe, read-only commands. Arguments
// are fixed; caller input only selects an entry, it never reaches the shell.
var allowedCommands = map[string]allowedCommand{
	"git_status": {args: []string{"git", "status"}, desc: "Check git status"},
	"git_log":    {args: []string{"git", "log", "--oneline", "-10"}, desc: "Recent commits"},
	"disk_usage": {args: []string{"df", "-h", "/"}, desc: "Disk usage"},
	"memory":     {args: []string{"free", "-h"}, desc: "Memory usage"},
	"uptime":     {args: []string{"uptime"}, desc: "System uptime"},
	"date":       {args: []string{"date"}, desc: "Current date/time"},
	"whoami":     {args: []string{"whoami"}, desc: "Current user"},
	"list_files": {args: []string{"ls", "-la", "."}, desc: "List working directory"},
	"network":    {args: []string{"ss", "-tuln"}, desc: "Network connections"},
	"processes":  {args: []string{"ps", "aux", "--sort=-%cpu"}, desc: "Running processes"},
	"hostname":   {args: []string{"hostname"}, desc: "Server hostname"},
	"ip_address": {args: []string{"hostname", "-I"}, desc: "Server IP addresses"},
}

// commandKeywords maps loose natural-language words to command names, so a
// request like "check disk space" still resolves to a whitelist entry.
var commandKeywords = []struct {
	keyword string
	command string
}{
	{"git", "git_status"},
	{"commit", "git_log"},
	{"disk", "disk_usage"},
	{"space", "disk_usage"},
	{"memory", "memory"},
	{"ram", "memory"},
	{"time", "date"},
	{"date", "date"},
	{"files", "list_files"},
	{"ls", "list_files"},
	{"network", "network"},
	{"ports", "network"},
	{"process", "processes"},
	{"cpu", "processes"},
	{"running", "processes"},
	{"host", "hostname"},
	{"ip", "ip_address"},
	{"address", "ip_address"},
	{"uptime", "uptime"},
}

// matchCommand resolves a requested command to a whitelist entry, first by
// exact name and then by keyword. Returns "" when nothing matches.
func matchCommand(requested string) string {
	normalized := strings.ToLower(strings.TrimSpace(requested))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	if _, ok := allowedCommands[normalized]; ok {
		return normalized
	}
	for _, kw := range commandKeywords {
		if strings.Contains(normalized, kw.keyword) {
			return kw.command
		}
	}
	return ""
}

// rawOutputLimit bounds subprocess output before the dispatcher's own cap.
const rawOutputLimit = 1500

func (d *Dispatcher) runCommand(ctx context.Context, params json.RawMessage) (string, error) {
	var p RunCommandParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}

	name := matchCommand(p.Command)
	if name == "" {
		return "", fmt.Errorf("command %q is not allowed", p.Command)
	}
	entry := allowedCommands[name]

	out, err := exec.CommandContext(ctx, entry.args[0], entry.args[1:]...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", context.DeadlineExceeded
	}

	output := strings.TrimSpace(string(out))
	if len(output) > rawOutputLimit {
		output = output[:rawOutputLimit] + "\n... (truncated)"
	}
	if err != nil {
		if output != "" {
			return "", fmt.Errorf("%s failed: %v: %s", name, err, output)
		}
		return "", fmt.Errorf("%s failed: %v", name, err)
	}
	if output == "" {
		output = "(no output)"
	}
	return fmt.Sprintf("%s: %s", entry.desc, output), nil
}

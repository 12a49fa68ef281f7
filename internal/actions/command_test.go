package actions

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"disk_usage", "disk_usage"},
		{"disk-usage", "disk_usage"},
		{"Disk Usage", "disk_usage"},
		{"how much disk space", "disk_usage"},
		{"ram", "memory"},
		{"what time is it", "date"},
		{"list the files", "list_files"},
		{"open ports", "network"},
		{"top cpu hogs", "processes"},
		{"uptime", "uptime"},
		{"rm -rf /", ""},
		{"sudo reboot", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			assert.Equal(t, tt.want, matchCommand(tt.requested))
		})
	}
}

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("whitelisted commands are unix tools")
	}
	d := newTestDispatcher(t)

	ok, result := d.Execute(context.Background(), "run_command",
		json.RawMessage(`{"command":"date"}`))
	require.True(t, ok, result)
	assert.Contains(t, result, "Current date/time")
}

func TestRunCommand_NotAllowed(t *testing.T) {
	d := newTestDispatcher(t)

	ok, result := d.Execute(context.Background(), "run_command",
		json.RawMessage(`{"command":"curl evil.example"}`))
	assert.False(t, ok)
	assert.Contains(t, result, "not allowed")
}

package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNoteName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain title", "groceries", "groceries.md"},
		{"keeps extension", "groceries.md", "groceries.md"},
		{"strips separators", "../../etc/passwd", "____etc_passwd.md"},
		{"strips specials", "my note!?", "mynote.md"},
		{"keeps safe chars", "2024-01_plan.v2", "2024-01_plan.v2.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeNoteName(tt.in))
		})
	}
}

func TestSanitizeNoteName_LengthCap(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "abcde"
	}
	assert.LessOrEqual(t, len(sanitizeNoteName(long)), 100)
}

func TestNotes_WriteThenRead(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	ok, result := d.Execute(ctx, "write_note",
		json.RawMessage(`{"title":"groceries","content":"milk\neggs"}`))
	require.True(t, ok, result)
	assert.Equal(t, "saved note groceries.md", result)

	ok, result = d.Execute(ctx, "read_note",
		json.RawMessage(`{"title":"groceries"}`))
	require.True(t, ok, result)
	assert.Equal(t, "milk\neggs", result)
}

func TestNotes_ReadMissing(t *testing.T) {
	d := newTestDispatcher(t)

	ok, result := d.Execute(context.Background(), "read_note",
		json.RawMessage(`{"title":"never written"}`))
	assert.False(t, ok)
	assert.Contains(t, result, "not found")
}

package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteNoteParams creates or overwrites a named note.
type WriteNoteParams struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// ReadNoteParams reads a note back by title.
type ReadNoteParams struct {
	Title string `json:"title" validate:"required"`
}

// sanitizeNoteName turns an arbitrary title into a safe filename: path
// separators stripped, only alphanumerics plus ._- kept, forced .md
// extension, capped at 100 characters.
func sanitizeNoteName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)

	var b strings.Builder
	for _, c := range name {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '.' || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}
	safe := b.String()
	if !strings.HasSuffix(safe, ".md") {
		safe += ".md"
	}
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

func (d *Dispatcher) writeNote(ctx context.Context, params json.RawMessage) (string, error) {
	var p WriteNoteParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.cfg.NotesDir, 0o755); err != nil {
		return "", fmt.Errorf("create notes dir: %w", err)
	}

	filename := sanitizeNoteName(p.Title)
	path := filepath.Join(d.cfg.NotesDir, filename)
	if err := os.WriteFile(path, []byte(p.Content+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	return fmt.Sprintf("saved note %s", filename), nil
}

func (d *Dispatcher) readNote(ctx context.Context, params json.RawMessage) (string, error) {
	var p ReadNoteParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}

	filename := sanitizeNoteName(p.Title)
	data, err := os.ReadFile(filepath.Join(d.cfg.NotesDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("note %q not found", p.Title)
		}
		return "", fmt.Errorf("read note: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

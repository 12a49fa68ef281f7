package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AppendMemoryParams appends one entry to the long-term memory file.
type AppendMemoryParams struct {
	Entry string `json:"entry" validate:"required"`
}

func (d *Dispatcher) appendMemory(ctx context.Context, params json.RawMessage) (string, error) {
	var p AppendMemoryParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(d.cfg.MemoryPath), 0o755); err != nil {
		return "", fmt.Errorf("create memory dir: %w", err)
	}

	f, err := os.OpenFile(d.cfg.MemoryPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open memory file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("- [%s] %s\n", time.Now().Format("2006-01-02 15:04"), p.Entry)
	if _, err := f.WriteString(line); err != nil {
		return "", fmt.Errorf("append memory: %w", err)
	}
	return "memory updated", nil
}

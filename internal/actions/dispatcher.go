package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind identifies a whitelisted action. The set is closed: anything outside
// it is rejected when the job is created, never discovered at execution time.
type Kind string

const (
	KindRunCommand   Kind = "run_command"
	KindWriteNote    Kind = "write_note"
	KindReadNote     Kind = "read_note"
	KindWebSearch    Kind = "web_search"
	KindServerStatus Kind = "server_status"
	KindAppendMemory Kind = "append_memory"
	KindRemind       Kind = "remind"
)

// Kinds returns the whitelist in sorted order.
func Kinds() []string {
	kinds := []string{
		string(KindRunCommand),
		string(KindWriteNote),
		string(KindReadNote),
		string(KindWebSearch),
		string(KindServerStatus),
		string(KindAppendMemory),
		string(KindRemind),
	}
	sort.Strings(kinds)
	return kinds
}

const (
	maxResultLen     = 1000
	truncationMarker = "... (truncated)"

	defaultTimeout = 30 * time.Second
)

// Config holds the dispatcher's filesystem and network settings.
type Config struct {
	CommandTimeout time.Duration // bound on each handler invocation
	NotesDir       string        // directory holding note files
	MemoryPath     string        // long-term memory markdown file
	SearchBaseURL  string        // search endpoint, overridable in tests
	ProcMount      string        // proc filesystem mount point
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (string, error)

// Dispatcher maps an action kind to its bounded, fault-isolated handler.
type Dispatcher struct {
	cfg      Config
	logger   *log.Logger
	validate *validator.Validate
	client   *http.Client
	handlers map[Kind]handlerFunc
}

// NewDispatcher creates a Dispatcher with all whitelisted handlers wired.
func NewDispatcher(cfg Config, logger *log.Logger) *Dispatcher {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultTimeout
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = "https://html.duckduckgo.com"
	}
	if cfg.ProcMount == "" {
		cfg.ProcMount = "/proc"
	}

	d := &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		client:   &http.Client{},
	}
	d.handlers = map[Kind]handlerFunc{
		KindRunCommand:   d.runCommand,
		KindWriteNote:    d.writeNote,
		KindReadNote:     d.readNote,
		KindWebSearch:    d.webSearch,
		KindServerStatus: d.serverStatus,
		KindAppendMemory: d.appendMemory,
		KindRemind:       d.remind,
	}
	return d
}

// Validate checks that action is whitelisted and params decode into the
// action's expected shape. It is called at job creation time so that a bad
// job is rejected before anything is persisted.
func (d *Dispatcher) Validate(action string, params json.RawMessage) error {
	target, err := paramsFor(Kind(action))
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := unmarshalParams(params, target); err != nil {
		return fmt.Errorf("params for %s: %w", action, err)
	}
	if err := d.validate.Struct(target); err != nil {
		return fmt.Errorf("params for %s: %w", action, err)
	}

	// The command whitelist is part of the shape check: an unknown command
	// must fail at creation, not at execution.
	if p, ok := target.(*RunCommandParams); ok {
		if matchCommand(p.Command) == "" {
			return fmt.Errorf("command %q is not allowed", p.Command)
		}
	}
	return nil
}

// Execute runs one whitelisted action against caller params. Any fault
// inside a handler, panics included, is converted to success=false with the
// fault message as result; nothing propagates to the runner. Results are
// capped at 1000 characters with a truncation marker.
func (d *Dispatcher) Execute(ctx context.Context, action string, params json.RawMessage) (success bool, result string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("action %s panicked: %v", action, r)
			success, result = false, truncate(fmt.Sprintf("panic: %v", r))
		}
	}()

	handler, ok := d.handlers[Kind(action)]
	if !ok {
		// Unreachable through the engine; creation rejects unknown kinds.
		return false, fmt.Sprintf("unknown action %q", action)
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.CommandTimeout)
	defer cancel()

	out, err := handler(cctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || cctx.Err() == context.DeadlineExceeded {
			return false, "timed out"
		}
		return false, truncate(err.Error())
	}
	return true, truncate(out)
}

// paramsFor returns a fresh params struct for the kind, nil if the kind
// takes no params, or an error for anything outside the whitelist.
func paramsFor(kind Kind) (interface{}, error) {
	switch kind {
	case KindRunCommand:
		return &RunCommandParams{}, nil
	case KindWriteNote:
		return &WriteNoteParams{}, nil
	case KindReadNote:
		return &ReadNoteParams{}, nil
	case KindWebSearch:
		return &WebSearchParams{}, nil
	case KindServerStatus:
		return nil, nil
	case KindAppendMemory:
		return &AppendMemoryParams{}, nil
	case KindRemind:
		return &RemindParams{}, nil
	default:
		return nil, fmt.Errorf("unknown action %q (allowed: %s)", kind, strings.Join(Kinds(), ", "))
	}
}

// unmarshalParams decodes params strictly: unknown fields are a shape error.
// Empty params decode as an empty object.
func unmarshalParams(params json.RawMessage, target interface{}) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxResultLen {
		return s
	}
	return s[:maxResultLen-len(truncationMarker)] + truncationMarker
}

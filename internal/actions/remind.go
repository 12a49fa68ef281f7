package actions

import (
	"context"
	"encoding/json"
)

// RemindParams carries the reminder text. Delivery to the user is the
// conversational surface's concern; the engine only records that the
// reminder fired, with the message as the run result.
type RemindParams struct {
	Message string `json:"message" validate:"required"`
}

func (d *Dispatcher) remind(ctx context.Context, params json.RawMessage) (string, error) {
	var p RemindParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}
	d.logger.Printf("reminder fired: %s", p.Message)
	return "Reminder: " + p.Message, nil
}

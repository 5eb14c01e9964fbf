package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Dialog is a JavaScript dialog (alert, confirm, prompt, beforeunload)
// awaiting a decision. Until Accept or Dismiss is called the page is blocked.
type Dialog struct {
	*channel.Owner

	init dialogInitializer
}

type dialogInitializer struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	DefaultValue string `json:"defaultValue"`
}

func newDialog(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Dialog {
	d := &Dialog{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &d.init)
	return d
}

// Type returns the dialog kind.
func (d *Dialog) Type() string { return d.init.Type }

// Message returns the dialog text.
func (d *Dialog) Message() string { return d.init.Message }

// DefaultValue returns the prompt's prefilled value.
func (d *Dialog) DefaultValue() string { return d.init.DefaultValue }

// Accept confirms the dialog; promptText fills a prompt's input.
func (d *Dialog) Accept(ctx context.Context, promptText string) error {
	params := map[string]any{}
	if promptText != "" {
		params["promptText"] = promptText
	}
	return d.Channel().Call(ctx, "accept", params)
}

// Dismiss cancels the dialog.
func (d *Dialog) Dismiss(ctx context.Context) error {
	return d.Channel().Call(ctx, "dismiss", nil)
}

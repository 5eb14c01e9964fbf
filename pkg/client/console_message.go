package client

import (
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// ConsoleMessage is one message logged in the page's console.
type ConsoleMessage struct {
	*channel.Owner

	init consoleMessageInitializer
}

type consoleMessageInitializer struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newConsoleMessage(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *ConsoleMessage {
	m := &ConsoleMessage{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &m.init)
	return m
}

// Type returns the console method used, e.g. "log" or "error".
func (m *ConsoleMessage) Type() string { return m.init.Type }

// Text returns the message text.
func (m *ConsoleMessage) Text() string { return m.init.Text }

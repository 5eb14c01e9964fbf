package client

import (
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// EventWorkerClose fires when a worker terminates.
const EventWorkerClose = "close"

// Worker is a dedicated or service worker attached to a page or context.
type Worker struct {
	*channel.Owner

	init workerInitializer
}

type workerInitializer struct {
	URL string `json:"url"`
}

func newWorker(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Worker {
	w := &Worker{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &w.init)
	return w
}

// URL returns the worker script URL.
func (w *Worker) URL() string { return w.init.URL }

// OnEvent fans worker lifecycle events out to listeners.
func (w *Worker) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "close":
		w.Emit(EventWorkerClose, w)
	default:
		w.Owner.OnEvent(method, params)
	}
}

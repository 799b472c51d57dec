package intake

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// NotifyURLSink is an intake.ReplySink that POSTs a PAP document to a
// PI-supplied ppg_notify_requested_to URL, delivering a terminal
// transition that happens after the originating HTTP request has
// already closed. It is implemented here since identmap.Maps needs a
// concrete ReplySink to store, and the engine's async-notify step has
// no other collaborator.
type NotifyURLSink struct {
	Client *http.Client
	URL    string
}

// Send POSTs doc as an application/xml body to the configured URL.
func (n *NotifyURLSink) Send(ctx context.Context, doc []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("intake: build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("intake: notify %s: %w", n.URL, err)
	}
	defer resp.Body.Close()
	return nil
}

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/events"
)

// Events streams daemon events until ctx is done or the daemon goes away.
// The returned channel is closed when the stream ends.
func (c *Client) Events(ctx context.Context) (<-chan events.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	ch := make(chan events.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := parseSSE(bufio.NewScanner(resp.Body), func(ev events.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()

	return ch, nil
}

// parseSSE reads "event:" and "data:" lines and calls emit for each event
// terminated by a blank line. It stops when emit returns false.
func parseSSE(sc *bufio.Scanner, emit func(events.Event) bool) error {
	var name string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := events.Event{Name: name, Data: decodeData(strings.Join(data, "\n"))}
			name, data = "", nil
			if !emit(ev) {
				return nil
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// decodeData undoes the daemon's quoting of string payloads, so Data holds
// the raw event JSON.
func decodeData(s string) json.RawMessage {
	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		return json.RawMessage(inner)
	}
	return json.RawMessage(s)
}

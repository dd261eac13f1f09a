package remote

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	subscribeHandshakeTimeout = 10 * time.Second
	subscribeBuffer           = 16
)

// Subscribe opens the change feed. The returned channel is closed when the
// connection drops or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context) (<-chan websocket.Event, error) {
	endpoint, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.deviceID != "" {
		header.Set(deviceIDHeader, c.deviceID)
	}

	dialer := gorillaws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: subscribeHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, statusError("subscribe", resp.StatusCode, nil)
		}
		return nil, transportError("subscribe", err)
	}

	events := make(chan websocket.Event, subscribeBuffer)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
					log.Warn().Err(err).Msg("Change feed disconnected")
				}
				return
			}

			event, err := websocket.ParseEvent(data)
			if err != nil {
				log.Debug().Err(err).Msg("Skipping malformed change event")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid server url")
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + apiPrefix + "/ws"
	return u.String(), nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/profile"
)

// daemonClient talks to chatsyncd over the profile's unix socket.
type daemonClient struct {
	http *http.Client
}

func newDaemonClient() (*daemonClient, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}
	socketPath := profile.SocketPath(name)

	return &daemonClient{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (c *daemonClient) get(path string, out any) error {
	resp, err := c.http.Get("http://chatsyncd" + path)
	if err != nil {
		return fmt.Errorf("is chatsyncd running? %w", err)
	}
	return decodeResponse(resp, out)
}

func (c *daemonClient) post(path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	resp, err := c.http.Post("http://chatsyncd"+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("is chatsyncd running? %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// formatTime renders a unix-millis timestamp for terminal output.
func formatTime(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return time.UnixMilli(millis).Local().Format("2006-01-02 15:04")
}

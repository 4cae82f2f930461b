package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gojek/heimdall/v7/httpclient"
)

// Client talks to a trace collector over HTTP.
type Client struct {
	http *httpclient.Client
	url  string
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("remote: collector URL must be set")
	}
	return &Client{
		url:  strings.TrimSuffix(baseURL, "/"),
		http: httpclient.NewClient(httpclient.WithHTTPTimeout(30 * time.Second)),
	}, nil
}

// PushTrace uploads one raw trace file to the collector under the given run.
// The payload is compressed on the wire.
func (c *Client) PushTrace(ctx context.Context, runID, name string, data []byte) error {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write(data); err != nil {
		return err
	}
	if err := bw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/trace/%s/%s", c.url, runID, name),
		&buf,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Content-Encoding", "br")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fetch retrieves the payload behind an absolute http(s) URL.
func (c *Client) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("remote: %s returned status %d", resp.Request.URL, resp.StatusCode)
	}
	return fmt.Errorf("remote: %s returned status %d: %s", resp.Request.URL, resp.StatusCode, msg)
}

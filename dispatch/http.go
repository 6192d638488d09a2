package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drippler/drippler"
	"github.com/hashicorp/go-cleanhttp"
)

// MessagesPath is where the background process accepts requests over HTTP.
const MessagesPath = "/v1/messages"

// HTTPChannel delivers requests to a background process serving the HTTP
// message surface.
type HTTPChannel struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChannel returns a channel to the process listening at baseURL.
// client may be nil.
func NewHTTPChannel(baseURL string, client *http.Client) *HTTPChannel {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
		client.Timeout = 30 * time.Second
	}
	return &HTTPChannel{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Send implements Channel.
func (c *HTTPChannel) Send(ctx context.Context, req drippler.Request) (drippler.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return drippler.Response{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return drippler.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return drippler.Response{}, drippler.Wrap(drippler.KindChannelUnavailable, req.Action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return drippler.Response{}, drippler.Wrap(drippler.KindChannelUnavailable, req.Action, err)
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway {
		return drippler.Response{}, drippler.Wrap(drippler.KindChannelUnavailable, req.Action,
			fmt.Errorf("background process unavailable: %s", resp.Status))
	}

	var out drippler.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return drippler.Response{}, fmt.Errorf("decode %s response (%s): %w", req.Action, resp.Status, err)
	}
	return out, nil
}

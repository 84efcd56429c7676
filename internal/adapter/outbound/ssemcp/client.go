// Package ssemcp implements the outbound port.SSEClient against a Gradio
// Space's MCP endpoint: a GET that opens an SSE stream carrying an
// "endpoint" event (the per-session POST URL) followed by "message"
// events (JSON-RPC responses and notifications), and a POST per outbound
// JSON-RPC request.
package ssemcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/spacebridge/gateway/internal/port/outbound"
)

const (
	// scannerInitialBufSize and scannerMaxBufSize are defensive sizing:
	// small default, large ceiling, to bound memory against a misbehaving upstream without
	// truncating a legitimately large payload.
	scannerInitialBufSize = 64 * 1024
	scannerMaxBufSize     = 4 * 1024 * 1024

	maxResponseBodySize = 10 * 1024 * 1024
)

// clientState tracks the lifecycle of one transient Client, guarding
// against a Close before Call completes and a double Close.
type clientState int32

const (
	stateNew clientState = iota
	stateOpen
	stateClosed
)

// Client is a single-use outbound.SSEClient bound to one space subdomain.
// Exactly one Call is expected per instance; Close is idempotent and safe
// to call without a prior Call.
type Client struct {
	sseURL      string
	bearerToken string
	httpClient  *http.Client

	mu    sync.Mutex
	state clientState
	body  io.ReadCloser
}

// New builds a Client targeting a space's MCP SSE endpoint.
func New(subdomain, bearerToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		sseURL:      fmt.Sprintf("https://%s.hf.space/gradio_api/mcp/sse", subdomain),
		bearerToken: bearerToken,
		httpClient:  httpClient,
	}
}

// serverEvent is one parsed SSE frame.
type serverEvent struct {
	event string
	data  string
}

// Call implements outbound.SSEClient. It opens the SSE stream, waits for
// the endpoint event, sends an initialize handshake followed by the
// tools/call request to that endpoint, and reads responses and progress
// notifications off the SSE stream until the matching response arrives.
func (c *Client) Call(ctx context.Context, toolName string, arguments map[string]any, onProgress func(progress, total float64, message string)) (outbound.Result, error) {
	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		return outbound.Result{}, fmt.Errorf("ssemcp: Call invoked more than once on a transient client")
	}
	c.state = stateOpen
	c.mu.Unlock()

	events := make(chan serverEvent, 16)
	errs := make(chan error, 1)
	captured := make(map[string]string)
	var capturedMu sync.Mutex

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sseURL, nil)
	if err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: build SSE request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.injectAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: open SSE stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return outbound.Result{}, fmt.Errorf("ssemcp: SSE stream status %d", resp.StatusCode)
	}
	captureHeader(&capturedMu, captured, resp.Header)

	c.mu.Lock()
	c.body = resp.Body
	c.mu.Unlock()

	go readEvents(resp.Body, events, errs)

	endpoint, err := c.awaitEndpoint(ctx, events, errs)
	if err != nil {
		return outbound.Result{}, err
	}

	postURL, err := resolveEndpoint(c.sseURL, endpoint)
	if err != nil {
		return outbound.Result{}, err
	}

	initID, err := jsonrpc.MakeID("init")
	if err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: make request id: %w", err)
	}
	initFrame, err := initializeRequest(initID)
	if err != nil {
		return outbound.Result{}, err
	}
	if err := c.post(ctx, postURL, initFrame, &capturedMu, captured); err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: initialize handshake: %w", err)
	}

	callID, err := jsonrpc.MakeID("1")
	if err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: make request id: %w", err)
	}
	callFrame, err := toolsCallRequest(callID, toolName, arguments)
	if err != nil {
		return outbound.Result{}, err
	}
	if err := c.post(ctx, postURL, callFrame, &capturedMu, captured); err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: send tools/call: %w", err)
	}

	result, err := c.awaitResult(ctx, callID, events, errs, onProgress)
	if err != nil {
		return outbound.Result{}, err
	}

	capturedMu.Lock()
	result.CapturedHeaders = captured
	capturedMu.Unlock()
	return result, nil
}

// injectAuth attaches the bearer token under X-HF-Authorization, never
// the standard Authorization header, which stays reserved for hub auth.
func (c *Client) injectAuth(req *http.Request) {
	if c.bearerToken != "" {
		req.Header.Set("X-HF-Authorization", "Bearer "+c.bearerToken)
	}
}

func captureHeader(mu *sync.Mutex, dst map[string]string, h http.Header) {
	mu.Lock()
	defer mu.Unlock()
	if v := h.Get("X-Proxied-Replica"); v != "" {
		dst["X-Proxied-Replica"] = v
	}
}

func readEvents(body io.ReadCloser, events chan<- serverEvent, errs chan<- error) {
	defer close(events)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, scannerInitialBufSize), scannerMaxBufSize)

	var evName string
	var dataBuf bytes.Buffer
	flush := func() {
		if dataBuf.Len() == 0 && evName == "" {
			return
		}
		events <- serverEvent{event: evName, data: dataBuf.String()}
		evName = ""
		dataBuf.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case bytesHasPrefix(line, "event:"):
			evName = trimField(line, "event:")
		case bytesHasPrefix(line, "data:"):
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(trimField(line, "data:"))
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		errs <- err
	}
}

func bytesHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func trimField(line, prefix string) string {
	v := line[len(prefix):]
	if len(v) > 0 && v[0] == ' ' {
		v = v[1:]
	}
	return v
}

func (c *Client) awaitEndpoint(ctx context.Context, events <-chan serverEvent, errs <-chan error) (string, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return "", fmt.Errorf("ssemcp: SSE stream closed before endpoint event")
			}
			if ev.event == "endpoint" {
				return ev.data, nil
			}
		case err := <-errs:
			return "", fmt.Errorf("ssemcp: reading SSE stream: %w", err)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func resolveEndpoint(sseURL, endpoint string) (string, error) {
	base, err := url.Parse(sseURL)
	if err != nil {
		return "", fmt.Errorf("ssemcp: parse SSE URL: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("ssemcp: parse endpoint event: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) post(ctx context.Context, target string, body []byte, mu *sync.Mutex, captured map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.injectAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	captureHeader(mu, captured, resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return fmt.Errorf("ssemcp: POST %s returned status %d", target, resp.StatusCode)
	}
	return nil
}

// awaitResult drains events until the response whose id matches callID
// arrives, relaying any notifications/progress frames via onProgress and
// resetting the inactivity deadline on every progress receipt so a
// long-running but progressing call does not spuriously time out. Every
// "message" event decodes through the same jsonrpc codec the downstream
// leg uses; frames that fail to decode are skipped.
func (c *Client) awaitResult(ctx context.Context, callID jsonrpc.ID, events <-chan serverEvent, errs <-chan error, onProgress func(progress, total float64, message string)) (outbound.Result, error) {
	const inactivityTimeout = 2 * time.Minute
	timer := time.NewTimer(inactivityTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return outbound.Result{}, fmt.Errorf("ssemcp: SSE stream closed before result")
			}
			if ev.event != "message" && ev.event != "" {
				continue
			}
			msg, err := jsonrpc.DecodeMessage([]byte(ev.data))
			if err != nil {
				continue
			}

			switch m := msg.(type) {
			case *jsonrpc.Request:
				if m.Method != "notifications/progress" {
					continue
				}
				resetTimer(timer, inactivityTimeout)
				p, total, note := parseProgress(m.Params)
				if onProgress != nil {
					onProgress(p, total, note)
				}
			case *jsonrpc.Response:
				if m.ID != callID {
					continue
				}
				if m.Error != nil {
					return outbound.Result{}, fmt.Errorf("ssemcp: upstream error: %w", m.Error)
				}
				return decodeToolResult(m.Result)
			}
		case err := <-errs:
			return outbound.Result{}, fmt.Errorf("ssemcp: reading SSE stream: %w", err)
		case <-timer.C:
			return outbound.Result{}, fmt.Errorf("ssemcp: inactivity timeout waiting for result")
		case <-ctx.Done():
			return outbound.Result{}, ctx.Err()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Close releases the SSE stream body. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	if c.body != nil {
		return c.body.Close()
	}
	return nil
}

package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// PollTransport is the long-poll fallback. Receive drains a locally
// buffered batch before asking the backend for more.
type PollTransport struct {
	base string
	http *http.Client

	mu     sync.Mutex
	cursor string
	buf    []Envelope

	ctx    context.Context
	cancel context.CancelFunc
}

type pollResponse struct {
	Cursor string     `json:"cursor"`
	Events []Envelope `json:"events"`
}

// NewPollTransport polls eventsURL/poll and emits to eventsURL/emit. The
// client should share the API client's cookie jar.
func NewPollTransport(eventsURL string, client *http.Client) *PollTransport {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollTransport{base: strings.TrimRight(eventsURL, "/"), http: client, ctx: ctx, cancel: cancel}
}

func (p *PollTransport) Send(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/emit", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("emit %s: status %d", env.Event, resp.StatusCode)
	}
	return nil
}

func (p *PollTransport) Receive(ctx context.Context) (Envelope, error) {
	for {
		p.mu.Lock()
		if len(p.buf) > 0 {
			env := p.buf[0]
			p.buf = p.buf[1:]
			p.mu.Unlock()
			return env, nil
		}
		cursor := p.cursor
		p.mu.Unlock()

		if err := p.ctx.Err(); err != nil {
			return Envelope{}, ErrClosed
		}
		batch, err := p.poll(ctx, cursor)
		if err != nil {
			return Envelope{}, err
		}
		p.mu.Lock()
		if batch.Cursor != "" {
			p.cursor = batch.Cursor
		}
		p.buf = append(p.buf, batch.Events...)
		p.mu.Unlock()
	}
}

func (p *PollTransport) poll(ctx context.Context, cursor string) (pollResponse, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	u := p.base + "/poll"
	if cursor != "" {
		u += "?" + url.Values{"cursor": {cursor}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return pollResponse{}, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return pollResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return pollResponse{Cursor: cursor}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pollResponse{}, fmt.Errorf("poll: status %d", resp.StatusCode)
	}
	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pollResponse{}, fmt.Errorf("poll: decode: %w", err)
	}
	return out, nil
}

func (p *PollTransport) Close() error {
	p.cancel()
	return nil
}

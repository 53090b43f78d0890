// Package mock provides a test double for the llm.Provider interface.
//
// Responses are served from a FIFO queue; when the queue is empty, Response
// (or Err) is returned for every call. Use Calls to inspect what the code
// under test sent.
package mock

import (
	"context"
	"sync"

	"github.com/clever-foxes/meetfox/pkg/provider/llm"
)

// Provider is a scriptable mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Queue is a FIFO of responses; each Complete call pops one entry.
	Queue []Scripted

	// Response is returned when Queue is empty and Err is nil.
	Response string

	// Err, if non-nil, is returned when Queue is empty.
	Err error

	// Calls records every request passed to Complete.
	Calls []llm.Request
}

// Scripted is one queued reply.
type Scripted struct {
	Content string
	Err     error
}

// Complete records the call and serves the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)

	if len(p.Queue) > 0 {
		next := p.Queue[0]
		p.Queue = p.Queue[1:]
		if next.Err != nil {
			return nil, next.Err
		}
		return &llm.Response{Content: next.Content}, nil
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return &llm.Response{Content: p.Response}, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request, or a zero Request when none
// were made.
func (p *Provider) LastCall() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.Request{}
	}
	return p.Calls[len(p.Calls)-1]
}

// Reset clears recorded calls and the queue. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Queue = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Package gatewaytest provides a scripted Gateway for tests.
package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"github.com/wsmontes/Document-Reviewer/internal/gateway"
)

type rule struct {
	contains string
	replies  []string
	err      error
	calls    int
}

// Script answers prompts by substring match. Rules are checked in the
// order they were added; the first match wins. Unmatched prompts get the
// default reply.
type Script struct {
	mu      sync.Mutex
	rules   []*rule
	reply   string
	prompts []string
}

var _ gateway.Gateway = (*Script)(nil)

// New returns a script whose unmatched prompts get defaultReply.
func New(defaultReply string) *Script {
	return &Script{reply: defaultReply}
}

// On answers prompts containing substr with reply.
func (s *Script) On(substr, reply string) *Script {
	return s.OnSeq(substr, reply)
}

// OnSeq answers successive matching prompts with replies in order,
// repeating the last one once exhausted.
func (s *Script) OnSeq(substr string, replies ...string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{contains: substr, replies: replies})
	return s
}

// Fail makes prompts containing substr return err.
func (s *Script) Fail(substr string, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{contains: substr, err: err})
	return s
}

// Call implements gateway.Gateway.
func (s *Script) Call(ctx context.Context, prompt string, _ ...gateway.CallOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	for _, r := range s.rules {
		if !strings.Contains(prompt, r.contains) {
			continue
		}
		if r.err != nil {
			return "", r.err
		}
		if len(r.replies) == 0 {
			return "", nil
		}
		i := r.calls
		if i >= len(r.replies) {
			i = len(r.replies) - 1
		}
		r.calls++
		return r.replies[i], nil
	}
	return s.reply, nil
}

// Prompts returns every prompt received, in arrival order.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Matching returns the received prompts that contain substr.
func (s *Script) Matching(substr string) []string {
	var out []string
	for _, p := range s.Prompts() {
		if strings.Contains(p, substr) {
			out = append(out, p)
		}
	}
	return out
}

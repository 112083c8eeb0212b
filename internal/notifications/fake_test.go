package notifications

import (
	"context"
	"sync"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []PushMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg PushMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

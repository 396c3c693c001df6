package narrator

import (
	"context"
	"errors"
	"sync"
)

// Scripted is a fake narrator that returns canned responses in order.
// It records every request it saw, including corrections.
type Scripted struct {
	mu        sync.Mutex
	Responses [][]byte
	Err       error // Returned once responses are exhausted
	Requests  []*Request
	next      int
}

// Generate implements Client
func (s *Scripted) Generate(_ context.Context, req *Request) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy; callers may reuse the request across correction attempts
	recorded := *req
	s.Requests = append(s.Requests, &recorded)
	if s.next >= len(s.Responses) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, errors.New("scripted narrator exhausted")
	}
	resp := s.Responses[s.next]
	s.next++
	return resp, nil
}

// Calls returns how many requests were made
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

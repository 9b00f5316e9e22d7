package repositories

import (
	"sync"

	"example.com/flightguild/bot/internal/models"
)

// RequestRegistry holds pending role requests in memory
type RequestRegistry struct {
	mu       sync.Mutex
	requests map[string]models.RoleRequest
}

// NewRequestRegistry creates an empty registry
func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{
		requests: make(map[string]models.RoleRequest),
	}
}

// Put stores a request
func (r *RequestRegistry) Put(req models.RoleRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
}

// Take removes and returns a request. Only the first caller for an id gets it.
func (r *RequestRegistry) Take(id string) (models.RoleRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if ok {
		delete(r.requests, id)
	}
	return req, ok
}

// Delete drops a request without acting on it
func (r *RequestRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, id)
}

// Len returns the number of pending requests
func (r *RequestRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// RateLimiter limits inbound messages per connection using a sliding window.
type RateLimiter struct {
	maxRequests int                    // Maximum requests allowed per window
	window      time.Duration          // Length of the sliding window
	requests    map[string][]time.Time // connectionID -> timestamps of recent requests
	mu          sync.Mutex
}

// NewRateLimiter allows maxRequests per window for each connection.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request and reports whether it is within the limit.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[connectionID]

	// Drop timestamps outside the window
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[connectionID] = valid
		return false
	}

	r.requests[connectionID] = append(valid, now)
	return true
}

// Cleanup forgets connections with no request inside the current window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)

	for connID, timestamps := range r.requests {
		allOld := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				allOld = false
				break
			}
		}
		if allOld {
			delete(r.requests, connID)
		}
	}
}

// RemoveConnection drops rate limit data for a closed connection.
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// ValidateMessageType checks if a message type is recognized
func ValidateMessageType(msgType string) error {
	switch msgType {
	case TypeJoinRoom, TypeMovePaddle, TypePing:
		return nil
	}
	return fmt.Errorf("%w '%s'", ErrUnknownMessage, msgType)
}

const maxNameLength = 20

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidJoin)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidJoin, maxNameLength)
	}
	return nil
}

// ValidateJoinRequest normalizes the room key in place and checks both
// fields.
func ValidateJoinRequest(req *JoinRoomRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	req.Room = NormalizeRoomKey(req.Room)
	if err := ValidateRoomKey(req.Room); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJoin, err)
	}
	return nil
}

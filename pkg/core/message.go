package core

import (
	"strings"
	"time"
)

// Message is a plain-text notification addressed to a set of recipients.
type Message struct {
	ID         string
	Subject    string
	Recipients []string
	Body       string
}

// RecipientSet is an insertion-ordered set of email addresses.
// Addresses are compared case-insensitively after trimming.
type RecipientSet struct {
	order []string
	seen  map[string]struct{}
}

// Add inserts addr unless it is blank or already present. It reports whether addr was added.
func (s *RecipientSet) Add(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	key := strings.ToLower(addr)
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, addr)
	return true
}

// Len returns the number of distinct addresses.
func (s *RecipientSet) Len() int {
	return len(s.order)
}

// Slice returns a copy of the addresses in insertion order.
func (s *RecipientSet) Slice() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// DeliveryStatus is the result of handing a message to the mail server.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryOutcome is reported by the mail transport once a message has been processed.
type DeliveryOutcome struct {
	MessageID  string
	Subject    string
	Recipients []string
	Status     DeliveryStatus
	// Reason is empty unless Status is DeliveryFailed.
	Reason string
	At     time.Time
}

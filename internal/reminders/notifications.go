package reminders

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"prep/internal/interview"
)

// Notification is a pending near-start reminder waiting for the client to
// pick it up.
type Notification struct {
	ID         string              `json:"id"`
	OwnerEmail string              `json:"-"`
	Interview  interview.Interview `json:"interview"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// NotificationID keys a notification by owner email and interview.
func NotificationID(ownerEmail string, interviewID uint64) string {
	return ownerEmail + "-" + strconv.FormatUint(interviewID, 10)
}

// NotificationSink holds pending notifications for the life of the process.
type NotificationSink struct {
	mu    sync.Mutex
	items map[string]Notification
}

func NewNotificationSink() *NotificationSink {
	return &NotificationSink{items: make(map[string]Notification)}
}

// Enqueue stores n unless a notification with the same id is resident.
func (s *NotificationSink) Enqueue(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[n.ID]; ok {
		return false
	}
	s.items[n.ID] = n
	return true
}

// List returns the owner's pending notifications, oldest first.
func (s *NotificationSink) List(ownerEmail string) []Notification {
	s.mu.Lock()
	out := make([]Notification, 0)
	for _, n := range s.items {
		if n.OwnerEmail == ownerEmail {
			out = append(out, n)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

func (s *NotificationSink) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	return n, ok
}

// Acknowledge deletes id. Unknown ids are a no-op so client retries are safe.
func (s *NotificationSink) Acknowledge(id string) {
	s.Remove(id)
}

// Remove deletes id and reports whether it was resident.
func (s *NotificationSink) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

func (s *NotificationSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

package workqueue

import (
	"strings"
	"time"

	"loom/internal/store"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusClaimed   Status = "claimed"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusQueued, StatusClaimed, StatusSucceeded, StatusFailed}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Item represents a work item persisted in the shared store.
//
// ClaimedBy/ClaimedAt/ClaimExpiresAt are set together on claim and left in
// place after terminal transitions; reading them on a succeeded or failed
// item is informational only.
type Item struct {
	ID             int64
	Queue          string
	TaskType       string
	BusinessUnit   string
	Status         Status
	Priority       int
	Payload        store.Blob
	Result         store.Blob
	ErrorText      string
	Attempts       int
	MaxAttempts    int
	IdempotencyKey string
	CreatedBy      string
	ClaimedBy      string
	ClaimedAt      *time.Time
	ClaimExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeaseExpired reports whether the item's lease had passed at the given
// instant. Only meaningful for claimed items.
func (i *Item) LeaseExpired(now time.Time) bool {
	return i.Status == StatusClaimed && i.ClaimExpiresAt != nil && i.ClaimExpiresAt.Before(now)
}

// EnqueueRequest describes a task to insert.
//
// A nil Priority selects the configured default; any explicit value,
// including zero, is stored as given (lower runs first). MaxAttempts zero
// selects the configured default.
type EnqueueRequest struct {
	Queue          string
	TaskType       string
	Payload        map[string]any
	BusinessUnit   string
	IdempotencyKey string
	Priority       *int
	MaxAttempts    int
	CreatedBy      string
}

// EnqueueResult reports the outcome of an enqueue.
//
// On a duplicate idempotency key, WorkItemID and Status describe the
// pre-existing row. A collision without a caller-supplied key yields
// Duplicate=true with WorkItemID zero: the conflicting row cannot be
// identified.
type EnqueueResult struct {
	Accepted   bool
	Duplicate  bool
	WorkItemID int64
	Status     Status
}

// Filter narrows List output. Zero values mean "no filter"; Limit zero
// selects the default of 50 (bounded to 500).
type Filter struct {
	Queue        string
	Status       Status
	BusinessUnit string
	Limit        int
}

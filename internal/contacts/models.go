package contacts

import (
	"time"

	"loom/internal/store"
)

// Contact is a person or organization scoped to one business unit.
type Contact struct {
	ID            int64
	BusinessUnit  string
	SourceOfTruth string
	FullName      string
	PrimaryEmail  string
	Company       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is a connector-scoped identifier bound to a contact.
type Identity struct {
	ID           int64
	ContactID    int64
	BusinessUnit string
	Source       string
	ExternalID   string
	IsPrimary    bool
	CreatedAt    time.Time
}

// ExternalLink points a contact at a record in an external system.
type ExternalLink struct {
	ID           int64
	ContactID    int64
	BusinessUnit string
	Provider     string
	ExternalRef  string
	Metadata     store.Blob
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Thread is a deduplicated message thread from one source.
type Thread struct {
	ID               int64
	BusinessUnit     string
	Source           string
	ExternalThreadID string
	LatestMessageAt  *time.Time
	Participants     []string
	MessageCount     int
	Metadata         store.Blob
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Interaction is a single recorded touchpoint with a contact.
type Interaction struct {
	ID             int64
	ContactID      int64
	BusinessUnit   string
	Source         string
	Direction      string
	Content        string
	IdempotencyKey string
	CreatedAt      time.Time
}

// View is the unified read model for one contact.
type View struct {
	Contact            *Contact
	Identities         []*Identity
	ExternalLinks      []*ExternalLink
	RecentInteractions []*Interaction
}

// UpsertContactRequest carries one connector observation of a contact.
// PrimaryEmail is the match key; without one the observation always inserts
// a fresh row.
type UpsertContactRequest struct {
	BusinessUnit  string
	FullName      string
	PrimaryEmail  string
	Company       string
	SourceOfTruth string
	Provider      string
	ExternalID    string
	Metadata      map[string]any
}

// UpsertLinkRequest records an external reference that may arrive before the
// contact it belongs to. ContactID zero leaves any existing binding alone.
type UpsertLinkRequest struct {
	BusinessUnit string
	Provider     string
	ExternalRef  string
	Metadata     map[string]any
	ContactID    int64
}

// UpsertThreadRequest carries one connector observation of a thread.
type UpsertThreadRequest struct {
	BusinessUnit     string
	Source           string
	ExternalThreadID string
	LatestMessageAt  *time.Time
	Participants     []string
	MessageCount     int
	Metadata         map[string]any
}

// AddInteractionRequest records one touchpoint. The idempotency key makes
// replays update content in place instead of appending.
type AddInteractionRequest struct {
	BusinessUnit   string
	Source         string
	Direction      string
	Content        string
	IdempotencyKey string
	ContactID      int64
}

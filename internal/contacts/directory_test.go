package contacts_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/contacts"
	"loom/internal/testsupport"
)

func newDirectory(t *testing.T) *contacts.Directory {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d, err := contacts.New(st, cfg)
	if err != nil {
		t.Fatalf("contacts.New: %v", err)
	}
	return d
}

func baseContact() contacts.UpsertContactRequest {
	return contacts.UpsertContactRequest{
		BusinessUnit:  "CC",
		FullName:      "Ada Lovelace",
		PrimaryEmail:  "ada@example.com",
		Company:       "Analytical Engines",
		SourceOfTruth: "gmail",
		Provider:      "gmail",
		ExternalID:    "msg-1",
		Metadata:      map[string]any{"label": "inbox"},
	}
}

func TestUpsertContactConvergesOnEmail(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	first, err := d.UpsertContact(ctx, baseContact())
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same mailbox, different provider and casing.
	req := baseContact()
	req.PrimaryEmail = "Ada@Example.COM"
	req.Provider = "calendar"
	req.ExternalID = "evt-9"
	second, err := d.UpsertContact(ctx, req)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second != first {
		t.Fatalf("expected same contact id, got %d and %d", first, second)
	}

	view, err := d.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view == nil {
		t.Fatal("expected view")
	}
	if len(view.Identities) != 2 {
		t.Fatalf("expected identities from both providers, got %+v", view.Identities)
	}
	if len(view.ExternalLinks) != 2 {
		t.Fatalf("expected two external links, got %+v", view.ExternalLinks)
	}
}

func TestUpsertContactFillsBlanksOnly(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	req := baseContact()
	req.FullName = ""
	req.Company = ""
	id, err := d.UpsertContact(ctx, req)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Blanks fill in from the second observation.
	req = baseContact()
	if _, err := d.UpsertContact(ctx, req); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	view, err := d.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Contact.FullName != "Ada Lovelace" || view.Contact.Company != "Analytical Engines" {
		t.Fatalf("expected blanks filled, got %+v", view.Contact)
	}

	// A later observation must not overwrite present values.
	req.FullName = "A. Lovelace"
	req.Company = "Babbage & Co"
	if _, err := d.UpsertContact(ctx, req); err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	view, err = d.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Contact.FullName != "Ada Lovelace" || view.Contact.Company != "Analytical Engines" {
		t.Fatalf("present values overwritten: %+v", view.Contact)
	}
}

func TestUpsertContactWithoutEmailAlwaysInserts(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	req := baseContact()
	req.PrimaryEmail = ""
	req.ExternalID = "msg-1"
	first, err := d.UpsertContact(ctx, req)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	req.ExternalID = "msg-2"
	second, err := d.UpsertContact(ctx, req)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct contacts without a match key")
	}
}

func TestUpsertContactValidation(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	req := baseContact()
	req.BusinessUnit = "NOPE"
	if _, err := d.UpsertContact(ctx, req); err == nil {
		t.Fatal("expected error for unknown business unit")
	}

	req = baseContact()
	req.Provider = ""
	if _, err := d.UpsertContact(ctx, req); err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestUpsertLinkKeepsExistingBinding(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	id, err := d.UpsertContact(ctx, baseContact())
	if err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}

	link := contacts.UpsertLinkRequest{
		BusinessUnit: "CC",
		Provider:     "wix_invoice",
		ExternalRef:  "inv-42",
		Metadata:     map[string]any{"total": 100},
		ContactID:    id,
	}
	if err := d.UpsertLink(ctx, link); err != nil {
		t.Fatalf("UpsertLink: %v", err)
	}

	// Replay without a contact id: metadata replaces, binding survives.
	link.ContactID = 0
	link.Metadata = map[string]any{"total": 250}
	if err := d.UpsertLink(ctx, link); err != nil {
		t.Fatalf("UpsertLink replay: %v", err)
	}

	view, err := d.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var found bool
	for _, l := range view.ExternalLinks {
		if l.Provider == "wix_invoice" && l.ExternalRef == "inv-42" {
			found = true
			if l.Metadata.Value()["total"] != float64(250) {
				t.Fatalf("expected metadata replaced, got %+v", l.Metadata)
			}
		}
	}
	if !found {
		t.Fatalf("expected invoice link bound to contact, got %+v", view.ExternalLinks)
	}
}

func TestUpsertThreadMonotonicLatest(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	newer := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-48 * time.Hour)

	req := contacts.UpsertThreadRequest{
		BusinessUnit:     "CC",
		Source:           "gmail",
		ExternalThreadID: "th-1",
		LatestMessageAt:  &newer,
		Participants:     []string{"ada@example.com"},
		MessageCount:     3,
	}
	if err := d.UpsertThread(ctx, req); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	// Out-of-order replay with an older timestamp.
	req.LatestMessageAt = &older
	req.Participants = []string{"ada@example.com", "charles@example.com"}
	req.MessageCount = 5
	if err := d.UpsertThread(ctx, req); err != nil {
		t.Fatalf("UpsertThread replay: %v", err)
	}

	threads, err := d.RecentThreads(ctx, "gmail", 10)
	if err != nil {
		t.Fatalf("RecentThreads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected one thread, got %d", len(threads))
	}
	thread := threads[0]
	if thread.LatestMessageAt == nil || !thread.LatestMessageAt.Equal(newer) {
		t.Fatalf("latest_message_at moved backward: %v", thread.LatestMessageAt)
	}
	if len(thread.Participants) != 2 || thread.MessageCount != 5 {
		t.Fatalf("expected participants and count replaced, got %+v", thread)
	}

	// A genuinely newer message advances it.
	newest := newer.Add(time.Hour)
	req.LatestMessageAt = &newest
	if err := d.UpsertThread(ctx, req); err != nil {
		t.Fatalf("UpsertThread advance: %v", err)
	}
	threads, err = d.RecentThreads(ctx, "gmail", 10)
	if err != nil {
		t.Fatalf("RecentThreads: %v", err)
	}
	if !threads[0].LatestMessageAt.Equal(newest) {
		t.Fatalf("expected latest advanced to %v, got %v", newest, threads[0].LatestMessageAt)
	}
}

func TestUpsertThreadNilTimestampKeepsStored(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	req := contacts.UpsertThreadRequest{
		BusinessUnit:     "CC",
		Source:           "gmail",
		ExternalThreadID: "th-2",
		LatestMessageAt:  &at,
	}
	if err := d.UpsertThread(ctx, req); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	req.LatestMessageAt = nil
	if err := d.UpsertThread(ctx, req); err != nil {
		t.Fatalf("UpsertThread replay: %v", err)
	}

	threads, err := d.RecentThreads(ctx, "gmail", 10)
	if err != nil {
		t.Fatalf("RecentThreads: %v", err)
	}
	if threads[0].LatestMessageAt == nil || !threads[0].LatestMessageAt.Equal(at) {
		t.Fatalf("expected stored timestamp kept, got %v", threads[0].LatestMessageAt)
	}
}

func TestAddInteractionIdempotent(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	id, err := d.UpsertContact(ctx, baseContact())
	if err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}

	req := contacts.AddInteractionRequest{
		BusinessUnit:   "CC",
		Source:         "gmail",
		Direction:      "inbound",
		Content:        "initial note",
		IdempotencyKey: "msg-1",
		ContactID:      id,
	}
	first, err := d.AddInteraction(ctx, req)
	if err != nil {
		t.Fatalf("AddInteraction: %v", err)
	}

	req.Content = "revised note"
	second, err := d.AddInteraction(ctx, req)
	if err != nil {
		t.Fatalf("AddInteraction replay: %v", err)
	}
	if first != second {
		t.Fatalf("replay should return the same id, got %d and %d", first, second)
	}

	view, err := d.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.RecentInteractions) != 1 {
		t.Fatalf("expected single interaction, got %d", len(view.RecentInteractions))
	}
	if view.RecentInteractions[0].Content != "revised note" {
		t.Fatalf("expected content replaced, got %q", view.RecentInteractions[0].Content)
	}
}

func TestSearchScopesByUnit(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	cc := baseContact()
	if _, err := d.UpsertContact(ctx, cc); err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}
	acs := baseContact()
	acs.BusinessUnit = "ACS"
	acs.PrimaryEmail = "ada@acs.example.com"
	acs.ExternalID = "msg-acs"
	if _, err := d.UpsertContact(ctx, acs); err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}

	results, err := d.Search(ctx, "lovelace", "", 10)
	if err != nil {
		t.Fatalf("Search all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both units, got %d", len(results))
	}

	results, err = d.Search(ctx, "lovelace", "ACS", 10)
	if err != nil {
		t.Fatalf("Search ACS: %v", err)
	}
	if len(results) != 1 || results[0].BusinessUnit != "ACS" {
		t.Fatalf("expected ACS only, got %+v", results)
	}

	results, err = d.Search(ctx, "nobody", "", 10)
	if err != nil {
		t.Fatalf("Search miss: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestGetUnknownContact(t *testing.T) {
	d := newDirectory(t)

	view, err := d.Get(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil view, got %+v", view)
	}
}

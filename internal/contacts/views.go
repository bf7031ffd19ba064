package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"loom/internal/store"
)

const (
	defaultSearchLimit     = 10
	recentInteractionLimit = 20
	defaultThreadLimit     = 20
)

// Get assembles the unified view for one contact: the row itself, its
// identities and external links, and its most recent interactions. Returns
// nil when the contact does not exist.
func (d *Directory) Get(ctx context.Context, contactID int64) (*View, error) {
	contact, err := d.getContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, nil
	}

	view := &View{Contact: contact}

	rows, err := d.store.DB().QueryContext(
		ctx,
		`SELECT id, contact_id, business_unit, source, external_id, is_primary, created_at
         FROM contact_identities WHERE contact_id = ? ORDER BY id`,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	for rows.Next() {
		var (
			identity  Identity
			isPrimary int
			createdAt string
		)
		if err := rows.Scan(&identity.ID, &identity.ContactID, &identity.BusinessUnit,
			&identity.Source, &identity.ExternalID, &isPrimary, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identity.IsPrimary = isPrimary != 0
		if ts, err := store.ParseTime(createdAt); err == nil {
			identity.CreatedAt = ts
		}
		view.Identities = append(view.Identities, &identity)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	links, err := d.linksForContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	view.ExternalLinks = links

	interactions, err := d.recentInteractions(ctx, contactID)
	if err != nil {
		return nil, err
	}
	view.RecentInteractions = interactions

	return view, nil
}

func (d *Directory) getContact(ctx context.Context, contactID int64) (*Contact, error) {
	row := d.store.DB().QueryRowContext(
		ctx,
		`SELECT id, business_unit, source_of_truth, full_name, primary_email, company, created_at, updated_at
         FROM contacts WHERE id = ?`,
		contactID,
	)
	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (d *Directory) linksForContact(ctx context.Context, contactID int64) ([]*ExternalLink, error) {
	rows, err := d.store.DB().QueryContext(
		ctx,
		`SELECT id, contact_id, business_unit, provider, external_ref, metadata_json, last_synced_at, created_at, updated_at
         FROM external_links WHERE contact_id = ? ORDER BY id`,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("list external links: %w", err)
	}
	defer rows.Close()

	var links []*ExternalLink
	for rows.Next() {
		var (
			link       ExternalLink
			contactRef sql.NullInt64
			metadata   sql.NullString
			lastSynced sql.NullString
			createdAt  string
			updatedAt  string
		)
		if err := rows.Scan(&link.ID, &contactRef, &link.BusinessUnit, &link.Provider,
			&link.ExternalRef, &metadata, &lastSynced, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan external link: %w", err)
		}
		link.ContactID = contactRef.Int64
		link.Metadata = store.DecodeBlob(metadata)
		if lastSynced.Valid {
			if ts, err := store.ParseTime(lastSynced.String); err == nil {
				link.LastSyncedAt = &ts
			}
		}
		if ts, err := store.ParseTime(createdAt); err == nil {
			link.CreatedAt = ts
		}
		if ts, err := store.ParseTime(updatedAt); err == nil {
			link.UpdatedAt = ts
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

func (d *Directory) recentInteractions(ctx context.Context, contactID int64) ([]*Interaction, error) {
	rows, err := d.store.DB().QueryContext(
		ctx,
		`SELECT id, contact_id, business_unit, source, direction, content, idempotency_key, created_at
         FROM interactions WHERE contact_id = ?
         ORDER BY created_at DESC LIMIT ?`,
		contactID, recentInteractionLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*Interaction
	for rows.Next() {
		var (
			interaction Interaction
			contactRef  sql.NullInt64
			direction   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&interaction.ID, &contactRef, &interaction.BusinessUnit,
			&interaction.Source, &direction, &interaction.Content,
			&interaction.IdempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		interaction.ContactID = contactRef.Int64
		interaction.Direction = direction.String
		if ts, err := store.ParseTime(createdAt); err == nil {
			interaction.CreatedAt = ts
		}
		interactions = append(interactions, &interaction)
	}
	return interactions, rows.Err()
}

// Search matches contacts by substring against name, email, and company. An
// empty or unknown business unit searches across all units.
func (d *Directory) Search(ctx context.Context, query, businessUnit string, limit int) ([]*Contact, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sqlQuery := `SELECT id, business_unit, source_of_truth, full_name, primary_email, company, created_at, updated_at
                 FROM contacts WHERE `
	args := make([]any, 0, 5)
	if d.cfg.AllowedUnit(businessUnit) {
		sqlQuery += `business_unit = ? AND `
		args = append(args, businessUnit)
	}
	sqlQuery += `(lower(full_name) LIKE ?
                  OR lower(COALESCE(primary_email, '')) LIKE ?
                  OR lower(COALESCE(company, '')) LIKE ?)
                 ORDER BY updated_at DESC LIMIT ?`
	args = append(args, pattern, pattern, pattern, limit)

	rows, err := d.store.DB().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()

	var results []*Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		results = append(results, contact)
	}
	return results, rows.Err()
}

// RecentThreads lists threads for a source, newest message first. An empty
// source lists across all sources.
func (d *Directory) RecentThreads(ctx context.Context, source string, limit int) ([]*Thread, error) {
	if limit <= 0 {
		limit = defaultThreadLimit
	}

	query := `SELECT id, business_unit, source, external_thread_id, latest_message_at,
                     participants_json, message_count, metadata_json, created_at, updated_at
              FROM message_threads WHERE 1=1`
	args := make([]any, 0, 2)
	if source = strings.TrimSpace(source); source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY COALESCE(latest_message_at, updated_at) DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var (
			thread       Thread
			latest       sql.NullString
			participants sql.NullString
			metadata     sql.NullString
			createdAt    string
			updatedAt    string
		)
		if err := rows.Scan(&thread.ID, &thread.BusinessUnit, &thread.Source,
			&thread.ExternalThreadID, &latest, &participants, &thread.MessageCount,
			&metadata, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		if latest.Valid {
			if ts, err := store.ParseTime(latest.String); err == nil {
				thread.LatestMessageAt = &ts
			}
		}
		thread.Participants = decodeStrings(participants)
		thread.Metadata = store.DecodeBlob(metadata)
		if ts, err := store.ParseTime(createdAt); err == nil {
			thread.CreatedAt = ts
		}
		if ts, err := store.ParseTime(updatedAt); err == nil {
			thread.UpdatedAt = ts
		}
		threads = append(threads, &thread)
	}
	return threads, rows.Err()
}

func scanContact(scanner interface{ Scan(dest ...any) error }) (*Contact, error) {
	var (
		contact       Contact
		sourceOfTruth sql.NullString
		fullName      sql.NullString
		primaryEmail  sql.NullString
		company       sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := scanner.Scan(&contact.ID, &contact.BusinessUnit, &sourceOfTruth,
		&fullName, &primaryEmail, &company, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	contact.SourceOfTruth = sourceOfTruth.String
	contact.FullName = fullName.String
	contact.PrimaryEmail = primaryEmail.String
	contact.Company = company.String
	if ts, err := store.ParseTime(createdAt); err == nil {
		contact.CreatedAt = ts
	}
	if ts, err := store.ParseTime(updatedAt); err == nil {
		contact.UpdatedAt = ts
	}
	return &contact, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeStrings(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil
	}
	return values
}

package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/store"
)

// Directory exposes the contact-graph operations over a shared store.
//
// Emails are stored in case-folded form, so the (business_unit,
// primary_email) index serves the match lookup directly.
type Directory struct {
	store *store.Store
	cfg   *config.Config
}

// New constructs a Directory.
func New(st *store.Store, cfg *config.Config) (*Directory, error) {
	if st == nil {
		return nil, errors.New("contacts requires a store")
	}
	if cfg == nil {
		return nil, errors.New("contacts requires a config")
	}
	return &Directory{store: st, cfg: cfg}, nil
}

func (d *Directory) checkUnit(unit string) error {
	if !d.cfg.AllowedUnit(unit) {
		return fmt.Errorf("business_unit %q is not in the allowed set %v", unit, d.cfg.Business.Units)
	}
	return nil
}

// UpsertContact applies one connector observation: resolve or create the
// contact row, then bind the identity and external-reference satellites to
// it. Returns the resolved contact id.
//
// The contact row merges fill-if-blank: full_name and company are written
// only when the stored value is blank. The satellites merge last-write-wins.
// All three writes happen in one transaction so a crash cannot leave an
// identity pointing at a contact that was never written.
func (d *Directory) UpsertContact(ctx context.Context, req UpsertContactRequest) (int64, error) {
	req.BusinessUnit = strings.TrimSpace(req.BusinessUnit)
	if err := d.checkUnit(req.BusinessUnit); err != nil {
		return 0, err
	}
	req.Provider = strings.TrimSpace(req.Provider)
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.Provider == "" || req.ExternalID == "" {
		return 0, errors.New("provider and external_id are required")
	}

	fullName := normalizeName(req.FullName)
	email := foldEmail(req.PrimaryEmail)
	company := strings.TrimSpace(req.Company)

	metadataJSON, err := store.EncodeObject(req.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := d.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	now := store.FormatTime(time.Now())
	contactID, err := d.resolveContact(ctx, tx, req.BusinessUnit, fullName, email, company, req.SourceOfTruth, now)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO contact_identities (contact_id, business_unit, source, external_id, is_primary, created_at)
         VALUES (?, ?, ?, ?, 1, ?)
         ON CONFLICT(source, external_id)
         DO UPDATE SET
           contact_id = excluded.contact_id,
           business_unit = excluded.business_unit,
           is_primary = 1`,
		contactID, req.BusinessUnit, req.Provider, req.ExternalID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert contact identity: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO external_links
            (contact_id, business_unit, provider, external_ref, metadata_json, last_synced_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(provider, external_ref)
         DO UPDATE SET
           contact_id = excluded.contact_id,
           business_unit = excluded.business_unit,
           metadata_json = excluded.metadata_json,
           last_synced_at = excluded.last_synced_at,
           updated_at = excluded.updated_at`,
		contactID, req.BusinessUnit, req.Provider, req.ExternalID, metadataJSON, now, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert external link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return contactID, nil
}

// resolveContact finds the contact matching the folded email within the
// business unit, updating it fill-if-blank, or inserts a fresh row. Without
// an email there is nothing to match on and the observation always inserts.
func (d *Directory) resolveContact(ctx context.Context, tx *sql.Tx, unit, fullName, email, company, sourceOfTruth, now string) (int64, error) {
	if email != "" {
		row := tx.QueryRowContext(
			ctx,
			`SELECT id FROM contacts
             WHERE business_unit = ? AND primary_email = ?
             LIMIT 1`,
			unit, email,
		)
		var contactID int64
		err := row.Scan(&contactID)
		switch {
		case err == nil:
			_, err = tx.ExecContext(
				ctx,
				`UPDATE contacts
                 SET full_name = CASE WHEN full_name IS NULL OR full_name = '' THEN ? ELSE full_name END,
                     company = CASE WHEN company IS NULL OR company = '' THEN ? ELSE company END,
                     source_of_truth = ?,
                     updated_at = ?
                 WHERE id = ?`,
				fullName, company, sourceOfTruth, now, contactID,
			)
			if err != nil {
				return 0, fmt.Errorf("update contact: %w", err)
			}
			return contactID, nil
		case !errors.Is(err, sql.ErrNoRows):
			return 0, fmt.Errorf("match contact: %w", err)
		}
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO contacts (business_unit, source_of_truth, full_name, primary_email, company, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		unit, sourceOfTruth, fullName, store.NullableString(email), store.NullableString(company), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	contactID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return contactID, nil
}

// UpsertLink records an external reference on its own, for feeds like
// billing documents that arrive before the contact they belong to. Metadata
// replaces outright; a zero ContactID keeps whatever binding already exists.
func (d *Directory) UpsertLink(ctx context.Context, req UpsertLinkRequest) error {
	req.BusinessUnit = strings.TrimSpace(req.BusinessUnit)
	if err := d.checkUnit(req.BusinessUnit); err != nil {
		return err
	}
	req.Provider = strings.TrimSpace(req.Provider)
	req.ExternalRef = strings.TrimSpace(req.ExternalRef)
	if req.Provider == "" || req.ExternalRef == "" {
		return errors.New("provider and external_ref are required")
	}

	metadataJSON, err := store.EncodeObject(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var contactID any
	if req.ContactID > 0 {
		contactID = req.ContactID
	}

	now := store.FormatTime(time.Now())
	_, err = d.store.DB().ExecContext(
		ctx,
		`INSERT INTO external_links
            (contact_id, business_unit, provider, external_ref, metadata_json, last_synced_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(provider, external_ref)
         DO UPDATE SET
           contact_id = COALESCE(excluded.contact_id, external_links.contact_id),
           business_unit = excluded.business_unit,
           metadata_json = excluded.metadata_json,
           last_synced_at = excluded.last_synced_at,
           updated_at = excluded.updated_at`,
		contactID, req.BusinessUnit, req.Provider, req.ExternalRef, metadataJSON, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert external link: %w", err)
	}
	return nil
}

// UpsertThread applies one connector observation of a thread.
//
// latest_message_at is monotonic: a replayed or out-of-order observation can
// never move it backward. Participants, message count, and metadata are
// replaced outright.
func (d *Directory) UpsertThread(ctx context.Context, req UpsertThreadRequest) error {
	req.BusinessUnit = strings.TrimSpace(req.BusinessUnit)
	if err := d.checkUnit(req.BusinessUnit); err != nil {
		return err
	}
	req.Source = strings.TrimSpace(req.Source)
	req.ExternalThreadID = strings.TrimSpace(req.ExternalThreadID)
	if req.Source == "" || req.ExternalThreadID == "" {
		return errors.New("source and external_thread_id are required")
	}

	participantsJSON, err := encodeStrings(req.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	metadataJSON, err := store.EncodeObject(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var latest any
	if req.LatestMessageAt != nil {
		latest = store.FormatTime(*req.LatestMessageAt)
	}

	now := store.FormatTime(time.Now())
	// MAX of two COALESCEs keeps the later of the stored and incoming
	// timestamps and tolerates either being NULL. The fixed-width layout
	// makes the string comparison chronological.
	_, err = d.store.DB().ExecContext(
		ctx,
		`INSERT INTO message_threads
            (business_unit, source, external_thread_id, latest_message_at,
             participants_json, message_count, metadata_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(source, external_thread_id)
         DO UPDATE SET
           business_unit = excluded.business_unit,
           latest_message_at = MAX(
               COALESCE(excluded.latest_message_at, message_threads.latest_message_at),
               COALESCE(message_threads.latest_message_at, excluded.latest_message_at)),
           participants_json = excluded.participants_json,
           message_count = excluded.message_count,
           metadata_json = excluded.metadata_json,
           updated_at = excluded.updated_at`,
		req.BusinessUnit, req.Source, req.ExternalThreadID, latest,
		participantsJSON, req.MessageCount, metadataJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert message thread: %w", err)
	}
	return nil
}

// AddInteraction records one touchpoint. A replayed idempotency key updates
// the content in place and returns the existing row's id.
func (d *Directory) AddInteraction(ctx context.Context, req AddInteractionRequest) (int64, error) {
	req.BusinessUnit = strings.TrimSpace(req.BusinessUnit)
	if err := d.checkUnit(req.BusinessUnit); err != nil {
		return 0, err
	}
	req.Source = strings.TrimSpace(req.Source)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.Source == "" || req.IdempotencyKey == "" {
		return 0, errors.New("source and idempotency_key are required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return 0, errors.New("content is required")
	}

	var contactID any
	if req.ContactID > 0 {
		contactID = req.ContactID
	}

	row := d.store.DB().QueryRowContext(
		ctx,
		`INSERT INTO interactions (contact_id, business_unit, source, direction, content, idempotency_key, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(idempotency_key)
         DO UPDATE SET content = excluded.content
         RETURNING id`,
		contactID, req.BusinessUnit, req.Source, store.NullableString(req.Direction),
		req.Content, req.IdempotencyKey, store.FormatTime(time.Now()),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert interaction: %w", err)
	}
	return id, nil
}

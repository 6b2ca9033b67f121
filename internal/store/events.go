package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
	"github.com/google/uuid"
)

const eventColumns = `id, timestamp, service, additional_services, change_type, source,
	initiator, initiator_identity, author_type, status, environment, summary,
	commit_sha, pr_number, pr_url, repository, branch, diff, files_changed,
	config_keys, previous_version, new_version, blast_radius, idempotency_key,
	change_set_id, canonical_url, tags, metadata, created_at, updated_at`

// Insert fills server-side defaults, validates and persists the event, and
// returns the canonical stored copy. A duplicate idempotency key surfaces as
// a CONFLICT error; callers that want 200-on-duplicate semantics should call
// GetByIdempotencyKey first.
func (s *Store) Insert(ctx context.Context, event *models.ChangeEvent) (*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.insert(ctx, s.db, event)
}

func (s *Store) insert(ctx context.Context, q querier, event *models.ChangeEvent) (*models.ChangeEvent, error) {
	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.ApplyDefaults(s.now())
	if err := stored.Validate(); err != nil {
		return nil, err
	}

	additionalServices, err := json.Marshal(stored.AdditionalServices)
	if err != nil {
		return nil, models.NewInvariantError("failed to encode additionalServices").WithCause(err)
	}
	filesChanged, _ := json.Marshal(stored.FilesChanged)
	configKeys, _ := json.Marshal(stored.ConfigKeys)
	tags, _ := json.Marshal(stored.Tags)
	metadata, _ := json.Marshal(stored.Metadata)

	var blastRadius interface{}
	if stored.BlastRadius != nil {
		encoded, err := json.Marshal(stored.BlastRadius)
		if err != nil {
			return nil, models.NewInvariantError("failed to encode blastRadius").WithCause(err)
		}
		blastRadius = string(encoded)
	}
	var idempotencyKey interface{}
	if stored.IdempotencyKey != "" {
		idempotencyKey = stored.IdempotencyKey
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO change_events (`+eventColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		stored.ID, toMillis(stored.Timestamp), stored.Service, string(additionalServices),
		string(stored.ChangeType), string(stored.Source), string(stored.Initiator),
		stored.InitiatorIdentity, string(stored.AuthorType), string(stored.Status),
		stored.Environment, stored.Summary, stored.CommitSHA, stored.PRNumber,
		stored.PRURL, stored.Repository, stored.Branch, stored.Diff,
		string(filesChanged), string(configKeys), stored.PreviousVersion,
		stored.NewVersion, blastRadius, idempotencyKey, stored.ChangeSetID,
		stored.CanonicalURL, string(tags), string(metadata),
		toMillis(stored.CreatedAt), toMillis(stored.UpdatedAt),
	)
	if err != nil {
		return nil, s.mapError(err, "failed to insert event")
	}
	return &stored, nil
}

// Get returns the event with the given id
func (s *Store) Get(ctx context.Context, id string) (*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM change_events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("event %s not found", id)
	}
	if err != nil {
		return nil, s.wrapScanError(err)
	}
	return event, nil
}

// GetByIdempotencyKey returns the event with the given idempotency key, or
// nil when no such event exists.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.getByIdempotencyKey(ctx, s.db, key)
}

func (s *Store) getByIdempotencyKey(ctx context.Context, q querier, key string) (*models.ChangeEvent, error) {
	if key == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM change_events WHERE idempotency_key = ?`, key)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrapScanError(err)
	}
	return event, nil
}

// Update applies a partial update. Only provided fields change; updatedAt is
// bumped to now. An update with no recognized field is a no-op that returns
// the current event.
func (s *Store) Update(ctx context.Context, id string, update *models.EventUpdate) (*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return current, nil
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, models.NewValidationError("unknown status %q", string(*update.Status))
		}
		current.Status = *update.Status
	}
	if update.Summary != nil {
		if *update.Summary == "" {
			return nil, models.NewValidationError("event summary must not be empty")
		}
		current.Summary = *update.Summary
	}
	if update.Tags != nil {
		current.Tags = update.Tags
	}
	if update.Metadata != nil {
		current.Metadata = update.Metadata
	}
	if update.BlastRadius != nil {
		current.BlastRadius = update.BlastRadius
	}
	current.UpdatedAt = s.now()

	tags, _ := json.Marshal(current.Tags)
	metadata, _ := json.Marshal(current.Metadata)
	var blastRadius interface{}
	if current.BlastRadius != nil {
		encoded, err := json.Marshal(current.BlastRadius)
		if err != nil {
			return nil, models.NewInvariantError("failed to encode blastRadius").WithCause(err)
		}
		blastRadius = string(encoded)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE change_events
		SET status = ?, summary = ?, tags = ?, metadata = ?, blast_radius = ?, updated_at = ?
		WHERE id = ?`,
		string(current.Status), current.Summary, string(tags), string(metadata),
		blastRadius, toMillis(current.UpdatedAt), id,
	)
	if err != nil {
		return nil, s.mapError(err, "failed to update event")
	}
	return current, nil
}

// Delete removes the event with the given id
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM change_events WHERE id = ?`, id)
	if err != nil {
		return s.mapError(err, "failed to delete event")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return s.mapError(err, "failed to delete event")
	}
	if affected == 0 {
		return models.NewNotFoundError("event %s not found", id)
	}
	return nil
}

func (s *Store) wrapScanError(err error) error {
	if _, ok := models.AsError(err); ok {
		return err
	}
	return s.mapError(err, "failed to read event")
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.ChangeEvent, error) {
	var (
		event                                     models.ChangeEvent
		timestampMS, createdMS, updatedMS         int64
		additionalServices, filesChanged          string
		configKeys, tags, metadata                string
		blastRadius, idempotencyKey               sql.NullString
		changeType, source, initiator, authorType string
		status                                    string
	)
	err := row.Scan(
		&event.ID, &timestampMS, &event.Service, &additionalServices, &changeType,
		&source, &initiator, &event.InitiatorIdentity, &authorType, &status,
		&event.Environment, &event.Summary, &event.CommitSHA, &event.PRNumber,
		&event.PRURL, &event.Repository, &event.Branch, &event.Diff,
		&filesChanged, &configKeys, &event.PreviousVersion, &event.NewVersion,
		&blastRadius, &idempotencyKey, &event.ChangeSetID, &event.CanonicalURL,
		&tags, &metadata, &createdMS, &updatedMS,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp = fromMillis(timestampMS)
	event.CreatedAt = fromMillis(createdMS)
	event.UpdatedAt = fromMillis(updatedMS)
	event.ChangeType = models.ChangeType(changeType)
	event.Source = models.Source(source)
	event.Initiator = models.Initiator(initiator)
	event.AuthorType = models.AuthorType(authorType)
	event.Status = models.Status(status)
	event.IdempotencyKey = idempotencyKey.String

	if err := json.Unmarshal([]byte(additionalServices), &event.AdditionalServices); err != nil {
		return nil, corruption("additional_services", event.ID, err)
	}
	if err := json.Unmarshal([]byte(filesChanged), &event.FilesChanged); err != nil {
		return nil, corruption("files_changed", event.ID, err)
	}
	if err := json.Unmarshal([]byte(configKeys), &event.ConfigKeys); err != nil {
		return nil, corruption("config_keys", event.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &event.Tags); err != nil {
		return nil, corruption("tags", event.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
		return nil, corruption("metadata", event.ID, err)
	}
	if blastRadius.Valid && blastRadius.String != "" {
		var prediction models.BlastRadiusPrediction
		if err := json.Unmarshal([]byte(blastRadius.String), &prediction); err != nil {
			return nil, corruption("blast_radius", event.ID, err)
		}
		event.BlastRadius = &prediction
	}
	return &event, nil
}

package registration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// DraftKey is the well-known storage key of the registration draft.
const DraftKey = "organization-registration-draft"

// ErrStorageMiss is returned by Storage implementations when the key is absent.
var ErrStorageMiss = errors.New("registration: storage key not found")

// Storage is the durable key-value slot the draft lives in.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Snapshot is the persisted projection of a draft. Transient UI state,
// submission status and document handles are deliberately absent.
type Snapshot struct {
	Organization       Organization   `json:"organization"`
	Representative     Representative `json:"representative"`
	AdditionalContacts []Contact      `json:"additionalContacts"`
	Step               Step           `json:"step"`
}

// SnapshotOf projects the persisted fields of d.
func SnapshotOf(d Draft) Snapshot {
	c := d.Clone()
	c.Organization.Documents = nil
	return Snapshot{
		Organization:       c.Organization,
		Representative:     c.Representative,
		AdditionalContacts: c.AdditionalContacts,
		Step:               c.Step,
	}
}

// Restore builds an editable draft from a snapshot.
func (s Snapshot) Restore() Draft {
	d := NewDraft()
	d.Organization = s.Organization
	d.Representative = s.Representative
	d.AdditionalContacts = s.AdditionalContacts
	d.Step = s.Step
	d.Normalize()
	return d
}

// DraftStore persists the in-progress draft. Every operation is best effort:
// storage failures are logged and degrade to "no draft available".
type DraftStore struct {
	storage Storage
	key     string
	logger  *slog.Logger
}

// NewDraftStore constructs a DraftStore writing under key. An empty key uses DraftKey.
func NewDraftStore(storage Storage, key string, logger *slog.Logger) *DraftStore {
	if key == "" {
		key = DraftKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftStore{storage: storage, key: key, logger: logger}
}

// Key returns the storage key in use.
func (s *DraftStore) Key() string {
	return s.key
}

// Save overwrites the stored snapshot with the persisted projection of d.
func (s *DraftStore) Save(ctx context.Context, d Draft) {
	if s == nil || s.storage == nil {
		return
	}
	payload, err := json.Marshal(SnapshotOf(d))
	if err != nil {
		s.logger.Warn("encode draft", slog.String("key", s.key), slog.Any("error", err))
		return
	}
	if err := s.storage.Set(ctx, s.key, payload); err != nil {
		s.logger.Warn("save draft", slog.String("key", s.key), slog.Any("error", err))
		recordDraftWrite("error")
		return
	}
	recordDraftWrite("ok")
}

// Load returns the stored snapshot. Absent, unreadable or malformed content
// yields ok == false.
func (s *DraftStore) Load(ctx context.Context) (Snapshot, bool) {
	if s == nil || s.storage == nil {
		return Snapshot{}, false
	}
	payload, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrStorageMiss) {
			s.logger.Warn("load draft", slog.String("key", s.key), slog.Any("error", err))
		}
		return Snapshot{}, false
	}
	snapshot, err := decodeSnapshot(payload)
	if err != nil {
		s.logger.Warn("discard malformed draft", slog.String("key", s.key), slog.Any("error", err))
		return Snapshot{}, false
	}
	return snapshot, true
}

// Clear removes the stored snapshot.
func (s *DraftStore) Clear(ctx context.Context) {
	if s == nil || s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrStorageMiss) {
		s.logger.Warn("clear draft", slog.String("key", s.key), slog.Any("error", err))
	}
}

// Exists reports whether a snapshot is stored, without decoding it.
func (s *DraftStore) Exists(ctx context.Context) bool {
	if s == nil || s.storage == nil {
		return false
	}
	ok, err := s.storage.Exists(ctx, s.key)
	if err != nil {
		s.logger.Warn("probe draft", slog.String("key", s.key), slog.Any("error", err))
		return false
	}
	return ok
}

var errMalformedSnapshot = errors.New("registration: malformed draft snapshot")

func decodeSnapshot(payload []byte) (Snapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Snapshot{}, err
	}
	for _, key := range []string{"organization", "representative", "additionalContacts", "step"} {
		if _, ok := probe[key]; !ok {
			return Snapshot{}, errMalformedSnapshot
		}
	}
	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Snapshot{}, err
	}
	if !snapshot.Step.Valid() {
		return Snapshot{}, errMalformedSnapshot
	}
	return snapshot, nil
}

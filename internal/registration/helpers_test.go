package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

type memStorage struct {
	mu     sync.Mutex
	values map[string][]byte
	err    error
	sets   int
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string][]byte)}
}

func (m *memStorage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[key]
	if !ok {
		return nil, ErrStorageMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *memStorage) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets++
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.values, key)
	return nil
}

func (m *memStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.values[key]
	return ok, nil
}

var errStorageDown = errors.New("storage unavailable")

type stubRegistrar struct {
	mu          sync.Mutex
	resp        RegistrationResponse
	err         error
	calls       int
	contentType string
	body        []byte
	release     chan struct{}
	entered     chan struct{}
}

func (s *stubRegistrar) Register(ctx context.Context, contentType string, body io.Reader) (RegistrationResponse, error) {
	raw, _ := io.ReadAll(body)
	s.mu.Lock()
	s.calls++
	s.contentType = contentType
	s.body = raw
	entered, release := s.entered, s.release
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return s.resp, s.err
}

func (s *stubRegistrar) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// validDraft returns a draft that passes every step.
func validDraft() Draft {
	d := NewDraft()
	d.Organization = Organization{
		LegalName:      "ACME S.A.S.",
		TradeName:      "Acme",
		IdentifierType: IdentifierTaxID,
		Identifier:     "8600077593",
		Sector:         "private",
		Size:           "medium",
		Country:        "CO",
		City:           "Bogotá",
		CityID:         11001,
		Address:        "Calle 100 # 10-20",
		ActivityCodes:  []ActivityCode{{ID: 1, Code: "6201", Label: "Software development"}},
		EmailDomains:   []string{"acme.com"},
	}
	d.Representative = Representative{
		FirstName:      "Laura",
		LastName:       "Gómez",
		IdentifierType: IdentifierNationalID,
		Identifier:     "52123456",
		Email:          "laura@acme.com",
		Phone:          "+57 300 000 0000",
		Country:        "CO",
		City:           "Bogotá",
	}
	d.AdditionalContacts = []Contact{
		{FirstName: "Pedro", LastName: "Ruiz", Email: "pedro@ACME.com", Position: "HR", PracticeSupervisor: true},
	}
	d.Normalize()
	return d
}

func newTestWizard(ctx context.Context, storage Storage, registrar Registrar) *Wizard {
	logger := discardLogger()
	return NewWizard(ctx, WizardDeps{
		Store:     NewDraftStore(storage, "", logger),
		Submitter: NewSubmitter(registrar, logger),
		Logger:    logger,
	})
}

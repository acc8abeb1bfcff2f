package registration

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// City is a city lookup candidate.
type City struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RegionName string `json:"region_name"`
}

// Label is the display text of the city.
func (c City) Label() string {
	if c.RegionName == "" {
		return c.Name
	}
	return c.Name + ", " + c.RegionName
}

// CityTarget selects which city field a lookup writes into.
type CityTarget int

const (
	OrganizationCity CityTarget = iota
	RepresentativeCity
)

// WizardDeps groups the collaborators of a Wizard.
type WizardDeps struct {
	Store     *DraftStore
	Submitter *Submitter
	Logger    *slog.Logger

	// Optional remote lookups.
	Cities         Fetcher[City]
	ActivityCodes  Fetcher[ActivityCode]
	CityConfig     LookupConfig
	ActivityConfig LookupConfig
}

// View is a read-only snapshot of the wizard.
type View struct {
	Draft        Draft           `json:"-"`
	Step         Step            `json:"step"`
	StepName     string          `json:"step_name"`
	Submission   SubmissionState `json:"submission"`
	Error        string          `json:"error,omitempty"`
	Confirmation *Confirmation   `json:"confirmation,omitempty"`
	Documents    []DocumentRef   `json:"documents"`
	Closed       bool            `json:"closed"`
}

// Wizard is the registration state machine. It owns the draft, gates forward
// transitions on step validation and persists every change through the
// DraftStore until the registration succeeds.
type Wizard struct {
	store     *DraftStore
	submitter *Submitter
	logger    *slog.Logger

	orgCities  *Lookup[City]
	repCities  *Lookup[City]
	activities *Lookup[ActivityCode]

	mu           sync.Mutex
	draft        Draft
	errMessage   string
	confirmation *Confirmation
	attachments  map[DocumentKind]Attachment
	closed       bool
}

// NewWizard constructs a wizard and opens it, restoring a stored draft if any.
func NewWizard(ctx context.Context, deps WizardDeps) *Wizard {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wizard{
		store:       deps.Store,
		submitter:   deps.Submitter,
		logger:      logger,
		attachments: make(map[DocumentKind]Attachment),
	}
	if deps.Cities != nil {
		cfg := deps.CityConfig
		if cfg.Name == "" {
			cfg = CityLookupConfig
		}
		w.orgCities = NewLookup(cfg, deps.Cities, logger)
		w.repCities = NewLookup(cfg, deps.Cities, logger)
	}
	if deps.ActivityCodes != nil {
		cfg := deps.ActivityConfig
		if cfg.Name == "" {
			cfg = ActivityLookupConfig
		}
		w.activities = NewLookup(cfg, deps.ActivityCodes, logger)
	}
	w.mu.Lock()
	w.openLocked(ctx)
	w.mu.Unlock()
	return w
}

// Open (re)starts the workflow on a restored draft, or an empty one. It
// reports whether a stored draft was restored. While a submission is in
// flight the workflow is left untouched and ErrSubmissionInFlight is returned.
func (w *Wizard) Open(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submission.Status == StatusSubmitting {
		return false, ErrSubmissionInFlight
	}
	return w.openLocked(ctx), nil
}

func (w *Wizard) openLocked(ctx context.Context) bool {
	w.closed = false
	w.errMessage = ""
	w.confirmation = nil
	w.attachments = make(map[DocumentKind]Attachment)
	snapshot, ok := w.store.Load(ctx)
	if ok {
		w.draft = snapshot.Restore()
		return true
	}
	w.draft = NewDraft()
	return false
}

// View returns a snapshot of the current state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Wizard) viewLocked() View {
	docs := make([]DocumentRef, 0, len(w.attachments))
	for _, kind := range []DocumentKind{DocumentIncorporation, DocumentTaxRegistration} {
		if a, ok := w.attachments[kind]; ok {
			docs = append(docs, a.Ref())
		}
	}
	var confirmation *Confirmation
	if w.confirmation != nil {
		c := *w.confirmation
		confirmation = &c
	}
	return View{
		Draft:        w.draft.Clone(),
		Step:         w.draft.Step,
		StepName:     w.draft.Step.String(),
		Submission:   w.draft.Submission,
		Error:        w.errMessage,
		Confirmation: confirmation,
		Documents:    docs,
		Closed:       w.closed,
	}
}

// DraftAvailable reports whether a persisted draft exists.
func (w *Wizard) DraftAvailable(ctx context.Context) bool {
	return w.store.Exists(ctx)
}

// Update applies fn to the draft and persists the result. Step and
// submission state are not editable through Update.
func (w *Wizard) Update(ctx context.Context, fn func(*Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	step, submission := w.draft.Step, w.draft.Submission
	fn(&w.draft)
	w.draft.Step, w.draft.Submission = step, submission
	w.commitLocked(ctx)
	return nil
}

func (w *Wizard) editableLocked() error {
	switch w.draft.Submission.Status {
	case StatusSubmitting:
		return ErrSubmissionInFlight
	case StatusSucceeded:
		return ErrAlreadySubmitted
	}
	return nil
}

// commitLocked normalizes the draft and writes it to the store.
func (w *Wizard) commitLocked(ctx context.Context) {
	w.draft.Normalize()
	if w.draft.Submission.Status == StatusSucceeded {
		return
	}
	w.store.Save(ctx, w.draft)
}

// Next advances one step when the current step validates. On failure the
// validation message becomes the visible error and the step is unchanged.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if w.draft.Step >= StepConfirmation {
		return ErrLastStep
	}
	if verr := ValidateStep(w.draft, w.draft.Step); verr != nil {
		w.errMessage = verr.Message
		return verr
	}
	w.draft.Step++
	w.errMessage = ""
	w.commitLocked(ctx)
	return nil
}

// Back returns to the previous step unconditionally.
func (w *Wizard) Back(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if w.draft.Step <= StepOrganization {
		return ErrFirstStep
	}
	w.draft.Step--
	w.errMessage = ""
	w.commitLocked(ctx)
	return nil
}

// Close exits the workflow. After a successful submission the draft is
// cleared. Otherwise, when something was entered, confirm is asked whether to
// leave (the draft stays stored for later); a nil confirm or a false answer
// keeps the workflow open. It reports whether the workflow closed. A
// submission in flight cannot be left and yields ErrSubmissionInFlight.
func (w *Wizard) Close(ctx context.Context, confirm func() bool) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.draft.Submission.Status {
	case StatusSubmitting:
		return false, ErrSubmissionInFlight
	case StatusSucceeded:
		w.store.Clear(ctx)
		w.closed = true
		w.resetLookups()
		return true, nil
	}
	if w.draft.HasInput() {
		if confirm == nil || !confirm() {
			return false, nil
		}
	}
	w.closed = true
	w.resetLookups()
	return true, nil
}

// Discard drops the stored draft and starts over on an empty one.
func (w *Wizard) Discard(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Submission.Status == StatusSubmitting {
		return ErrSubmissionInFlight
	}
	w.store.Clear(ctx)
	w.draft = NewDraft()
	w.errMessage = ""
	w.confirmation = nil
	w.attachments = make(map[DocumentKind]Attachment)
	w.resetLookups()
	return nil
}

// Finalize submits the registration from the confirmation step. Every data
// step is re-validated first. While a submission is in flight further calls
// return ErrSubmissionInFlight without issuing a request.
func (w *Wizard) Finalize(ctx context.Context) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.draft.Step != StepConfirmation {
		w.mu.Unlock()
		return ErrNotConfirmationStep
	}
	if verr := ValidateAll(w.draft); verr != nil {
		w.errMessage = verr.Message
		w.mu.Unlock()
		return verr
	}
	w.draft.Submission = SubmissionState{Status: StatusSubmitting}
	w.errMessage = ""
	draft := w.draft.Clone()
	files := make([]Attachment, 0, len(w.attachments))
	for _, kind := range []DocumentKind{DocumentIncorporation, DocumentTaxRegistration} {
		if a, ok := w.attachments[kind]; ok {
			files = append(files, a)
		}
	}
	w.mu.Unlock()

	outcome := w.submitter.Submit(ctx, draft, files)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Submission = outcome.State
	if outcome.State.Status == StatusSucceeded {
		w.confirmation = outcome.Confirmation
		w.store.Clear(ctx)
		w.logger.Info("registration submitted", slog.String("organization", draft.Organization.LegalName))
		return nil
	}
	w.errMessage = outcome.State.Message
	w.store.Save(ctx, w.draft)
	return nil
}

// AttachDocument keeps a supporting document in memory for the submission.
func (w *Wizard) AttachDocument(a Attachment) error {
	if a.Kind != DocumentIncorporation && a.Kind != DocumentTaxRegistration {
		return ErrDocumentKind
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.attachments[a.Kind] = a
	w.draft.Organization.Documents = w.documentRefsLocked()
	return nil
}

// RemoveDocument drops a supporting document.
func (w *Wizard) RemoveDocument(kind DocumentKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	delete(w.attachments, kind)
	w.draft.Organization.Documents = w.documentRefsLocked()
	return nil
}

func (w *Wizard) documentRefsLocked() []DocumentRef {
	refs := make([]DocumentRef, 0, len(w.attachments))
	for _, kind := range []DocumentKind{DocumentIncorporation, DocumentTaxRegistration} {
		if a, ok := w.attachments[kind]; ok {
			refs = append(refs, a.Ref())
		}
	}
	return refs
}

// AddActivityCode appends a code, rejecting duplicates and anything past the cap.
func (w *Wizard) AddActivityCode(ctx context.Context, code ActivityCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	code.Code = strings.TrimSpace(code.Code)
	for _, existing := range w.draft.Organization.ActivityCodes {
		if existing.Code == code.Code {
			return ErrActivityCodeDup
		}
	}
	if len(w.draft.Organization.ActivityCodes) >= MaxActivityCodes {
		return ErrActivityCodeLimit
	}
	w.draft.Organization.ActivityCodes = append(w.draft.Organization.ActivityCodes, code)
	w.commitLocked(ctx)
	return nil
}

// RemoveActivityCode removes a code by its value.
func (w *Wizard) RemoveActivityCode(ctx context.Context, code string) error {
	return w.Update(ctx, func(d *Draft) {
		kept := d.Organization.ActivityCodes[:0]
		for _, existing := range d.Organization.ActivityCodes {
			if existing.Code != code {
				kept = append(kept, existing)
			}
		}
		d.Organization.ActivityCodes = kept
	})
}

// AddEmailDomain accepts a new email domain; the domain is folded and de-duplicated.
func (w *Wizard) AddEmailDomain(ctx context.Context, domain string) error {
	if NormalizeDomain(domain) == "" {
		return ErrRequired
	}
	return w.Update(ctx, func(d *Draft) {
		d.Organization.EmailDomains = append(d.Organization.EmailDomains, domain)
	})
}

// RemoveEmailDomain removes an accepted email domain.
func (w *Wizard) RemoveEmailDomain(ctx context.Context, domain string) error {
	domain = NormalizeDomain(domain)
	return w.Update(ctx, func(d *Draft) {
		kept := d.Organization.EmailDomains[:0]
		for _, existing := range d.Organization.EmailDomains {
			if existing != domain {
				kept = append(kept, existing)
			}
		}
		d.Organization.EmailDomains = kept
	})
}

// AddContact appends an additional contact.
func (w *Wizard) AddContact(ctx context.Context, c Contact) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if len(w.draft.AdditionalContacts) >= MaxContacts {
		return ErrContactLimit
	}
	w.draft.AdditionalContacts = append(w.draft.AdditionalContacts, c)
	w.commitLocked(ctx)
	return nil
}

// SetContact replaces the contact at index i.
func (w *Wizard) SetContact(ctx context.Context, i int, c Contact) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.draft.AdditionalContacts) {
		return ErrContactIndex
	}
	w.draft.AdditionalContacts[i] = c
	w.commitLocked(ctx)
	return nil
}

// RemoveContact removes the contact at index i.
func (w *Wizard) RemoveContact(ctx context.Context, i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.draft.AdditionalContacts) {
		return ErrContactIndex
	}
	w.draft.AdditionalContacts = append(w.draft.AdditionalContacts[:i], w.draft.AdditionalContacts[i+1:]...)
	w.commitLocked(ctx)
	return nil
}

// SearchCity feeds the city lookup of target. It is a no-op without a city source.
func (w *Wizard) SearchCity(target CityTarget, query string) {
	if l := w.cityLookup(target); l != nil {
		l.Search(query)
	}
}

// CitySuggestions returns the visible city suggestions of target.
func (w *Wizard) CitySuggestions(target CityTarget) LookupResult[City] {
	if l := w.cityLookup(target); l != nil {
		return l.Result()
	}
	return LookupResult[City]{}
}

// SelectCity writes the chosen city into the draft and clears the lookup.
func (w *Wizard) SelectCity(ctx context.Context, target CityTarget, city City) error {
	err := w.Update(ctx, func(d *Draft) {
		switch target {
		case RepresentativeCity:
			d.Representative.City = city.Name
			d.Representative.CityID = city.ID
		default:
			d.Organization.City = city.Name
			d.Organization.CityID = city.ID
		}
	})
	if err != nil {
		return err
	}
	if l := w.cityLookup(target); l != nil {
		l.Reset()
	}
	return nil
}

func (w *Wizard) cityLookup(target CityTarget) *Lookup[City] {
	if target == RepresentativeCity {
		return w.repCities
	}
	return w.orgCities
}

// SearchActivityCode feeds the economic-activity-code lookup.
func (w *Wizard) SearchActivityCode(query string) {
	if w.activities != nil {
		w.activities.Search(query)
	}
}

// ActivityCodeSuggestions returns the visible activity-code suggestions.
func (w *Wizard) ActivityCodeSuggestions() LookupResult[ActivityCode] {
	if w.activities == nil {
		return LookupResult[ActivityCode]{}
	}
	return w.activities.Result()
}

// SelectActivityCode adds the chosen code and clears the lookup. Selection is
// rejected once the cap is reached; the suggestions stay visible then.
func (w *Wizard) SelectActivityCode(ctx context.Context, code ActivityCode) error {
	if err := w.AddActivityCode(ctx, code); err != nil {
		return err
	}
	if w.activities != nil {
		w.activities.Reset()
	}
	return nil
}

// Shutdown stops every lookup owned by the wizard.
func (w *Wizard) Shutdown() {
	for _, l := range []*Lookup[City]{w.orgCities, w.repCities} {
		if l != nil {
			l.Close()
		}
	}
	if w.activities != nil {
		w.activities.Close()
	}
}

func (w *Wizard) resetLookups() {
	for _, l := range []*Lookup[City]{w.orgCities, w.repCities} {
		if l != nil {
			l.Reset()
		}
	}
	if w.activities != nil {
		w.activities.Reset()
	}
}

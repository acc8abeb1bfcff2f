// Package registrationhttp exposes the organization registration wizard as a
// JSON API. Each browser session drives its own wizard.
package registrationhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/practicum-hub/practicum/internal/platform/httpx"
	"github.com/practicum-hub/practicum/internal/registration"
	"github.com/practicum-hub/practicum/internal/shared"
)

const (
	defaultMaxUpload = 10 << 20
	catalogTTL       = 10 * time.Minute
)

// Handler wires HTTP endpoints for the registration wizard.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	reference registration.ReferenceSource
	csrf      *shared.CSRFManager
	maxUpload int64

	catalogMu     sync.Mutex
	catalog       registration.Catalog
	catalogLoaded time.Time
	now           func() time.Time
}

// NewHandler constructs the registration handler. reference and csrf may be nil.
func NewHandler(logger *slog.Logger, registry *Registry, reference registration.ReferenceSource, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		registry:  registry,
		reference: reference,
		csrf:      csrf,
		maxUpload: defaultMaxUpload,
		now:       time.Now,
	}
}

// MountRoutes registers the wizard endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.state)
	r.Get("/draft", h.draftIndicator)
	r.Get("/catalog", h.getCatalog)
	r.Post("/open", h.open)

	r.Put("/organization", h.updateOrganization)
	r.Put("/representative", h.updateRepresentative)
	r.Post("/contacts", h.addContact)
	r.Put("/contacts/{index}", h.setContact)
	r.Delete("/contacts/{index}", h.removeContact)
	r.Post("/activity-codes", h.addActivityCode)
	r.Delete("/activity-codes/{code}", h.removeActivityCode)
	r.Post("/email-domains", h.addEmailDomain)
	r.Delete("/email-domains/{domain}", h.removeEmailDomain)
	r.Post("/documents/{kind}", h.attachDocument)
	r.Delete("/documents/{kind}", h.removeDocument)

	r.Post("/next", h.next)
	r.Post("/back", h.back)
	r.Post("/close", h.closeWizard)
	r.Post("/discard", h.discard)
	r.Post("/finalize", h.finalize)

	r.Get("/lookups/cities", h.searchCities)
	r.Post("/lookups/cities/select", h.selectCity)
	r.Get("/lookups/activity-codes", h.searchActivityCodes)
	r.Post("/lookups/activity-codes/select", h.selectActivityCode)

	r.Put("/programs/faculty", h.setFaculty)
	r.Get("/programs", h.searchPrograms)
	r.Post("/programs/select", h.selectProgram)
}

type stateResponse struct {
	registration.View
	Organization       registration.Organization   `json:"organization"`
	Representative     registration.Representative `json:"representative"`
	AdditionalContacts []registration.Contact      `json:"additional_contacts"`
	DraftAvailable     bool                        `json:"draft_available"`
	CSRFToken          string                      `json:"csrf_token,omitempty"`
}

// workspace holds the session workspace for the rest of the request.
func (h *Handler) workspace(r *http.Request) (Workspace, func(), error) {
	id, err := shared.SessionIDFromContext(r.Context())
	if err != nil {
		return Workspace{}, nil, err
	}
	ws, release := h.registry.Acquire(r.Context(), id)
	return ws, release, nil
}

func (h *Handler) respondState(w http.ResponseWriter, r *http.Request, wizard *registration.Wizard) {
	view := wizard.View()
	resp := stateResponse{
		View:               view,
		Organization:       view.Draft.Organization,
		Representative:     view.Draft.Representative,
		AdditionalContacts: view.Draft.AdditionalContacts,
		DraftAvailable:     wizard.DraftAvailable(r.Context()),
	}
	if resp.AdditionalContacts == nil {
		resp.AdditionalContacts = []registration.Contact{}
	}
	if h.csrf != nil {
		if token, err := h.csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context())); err == nil {
			resp.CSRFToken = token
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// mutate runs fn against the session wizard and answers with the new state.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, wizard *registration.Wizard) error) {
	ws, release, err := h.workspace(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer release()
	if err := fn(r.Context(), ws.Wizard); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondState(w, r, ws.Wizard)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(context.Context, *registration.Wizard) error { return nil })
}

func (h *Handler) draftIndicator(w http.ResponseWriter, r *http.Request) {
	ws, release, err := h.workspace(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer release()
	httpx.JSON(w, http.StatusOK, map[string]bool{"available": ws.Wizard.DraftAvailable(r.Context())})
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.loadCatalog(r.Context()))
}

// loadCatalog serves the reference lists, refreshing them after catalogTTL.
// A catalog whose lists all came back empty is not kept.
func (h *Handler) loadCatalog(ctx context.Context) registration.Catalog {
	h.catalogMu.Lock()
	defer h.catalogMu.Unlock()
	if !h.catalogLoaded.IsZero() && h.now().Sub(h.catalogLoaded) < catalogTTL {
		return h.catalog
	}
	catalog := registration.LoadCatalog(ctx, h.reference, h.logger)
	if len(catalog.Sectors)+len(catalog.Sizes)+len(catalog.Countries) > 0 {
		h.catalog = catalog
		h.catalogLoaded = h.now()
	}
	return catalog
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		_, err := wizard.Open(ctx)
		return err
	})
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var in organizationInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Update(ctx, in.apply)
	})
}

func (h *Handler) updateRepresentative(w http.ResponseWriter, r *http.Request) {
	var in representativeInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Update(ctx, in.apply)
	})
}

func (h *Handler) addContact(w http.ResponseWriter, r *http.Request) {
	var in contactInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.AddContact(ctx, in.contact())
	})
}

func (h *Handler) setContact(w http.ResponseWriter, r *http.Request) {
	index, err := contactIndex(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var in contactInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.SetContact(ctx, index, in.contact())
	})
}

func (h *Handler) removeContact(w http.ResponseWriter, r *http.Request) {
	index, err := contactIndex(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.RemoveContact(ctx, index)
	})
}

func contactIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("%w: contact index must be a number", httpx.ErrBadRequest)
	}
	return index, nil
}

func (h *Handler) addActivityCode(w http.ResponseWriter, r *http.Request) {
	var in activityCodeInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.AddActivityCode(ctx, in.activityCode())
	})
}

func (h *Handler) removeActivityCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.RemoveActivityCode(ctx, code)
	})
}

func (h *Handler) addEmailDomain(w http.ResponseWriter, r *http.Request) {
	var in domainInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.AddEmailDomain(ctx, in.Domain)
	})
}

func (h *Handler) removeEmailDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.RemoveEmailDomain(ctx, domain)
	})
}

func (h *Handler) attachDocument(w http.ResponseWriter, r *http.Request) {
	kind := registration.DocumentKind(chi.URLParam(r, "kind"))
	if r.ContentLength > h.maxUpload {
		h.respondError(w, r, fmt.Errorf("%w: document exceeds %d bytes", httpx.ErrPayloadTooLarge, h.maxUpload))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, fmt.Errorf("%w: document exceeds %d bytes", httpx.ErrPayloadTooLarge, h.maxUpload))
			return
		}
		h.respondError(w, r, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: file part required", httpx.ErrBadRequest))
		return
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: read upload: %v", httpx.ErrBadRequest, err))
		return
	}
	attachment := registration.Attachment{
		Kind:        kind,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.AttachDocument(attachment)
	})
}

func (h *Handler) removeDocument(w http.ResponseWriter, r *http.Request) {
	kind := registration.DocumentKind(chi.URLParam(r, "kind"))
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.RemoveDocument(kind)
	})
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Next(ctx)
	})
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Back(ctx)
	})
}

// closeWizard asks to leave the workflow. When input exists the caller must send
// confirm=true; otherwise the wizard stays open and closed=false is returned.
func (h *Handler) closeWizard(w http.ResponseWriter, r *http.Request) {
	var in closeInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		_, err := wizard.Close(ctx, func() bool { return in.Confirm })
		return err
	})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Discard(ctx)
	})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.Finalize(ctx)
	})
}

func cityTarget(raw string) (registration.CityTarget, error) {
	switch raw {
	case "", "organization":
		return registration.OrganizationCity, nil
	case "representative":
		return registration.RepresentativeCity, nil
	}
	return 0, fmt.Errorf("%w: unknown city target %q", httpx.ErrBadRequest, raw)
}

// searchCities feeds the city lookup when q is present and answers with the
// suggestions visible right now. Clients poll without q until pending clears.
func (h *Handler) searchCities(w http.ResponseWriter, r *http.Request) {
	target, err := cityTarget(r.URL.Query().Get("target"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ws, release, err := h.workspace(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer release()
	if query, ok := r.URL.Query()["q"]; ok {
		ws.Wizard.SearchCity(target, query[0])
	}
	httpx.JSON(w, http.StatusOK, lookupResponse(ws.Wizard.CitySuggestions(target)))
}

func (h *Handler) selectCity(w http.ResponseWriter, r *http.Request) {
	var in citySelectInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	target, err := cityTarget(in.Target)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.SelectCity(ctx, target, in.city())
	})
}

func (h *Handler) searchActivityCodes(w http.ResponseWriter, r *http.Request) {
	ws, release, err := h.workspace(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer release()
	if query, ok := r.URL.Query()["q"]; ok {
		ws.Wizard.SearchActivityCode(query[0])
	}
	httpx.JSON(w, http.StatusOK, lookupResponse(ws.Wizard.ActivityCodeSuggestions()))
}

func (h *Handler) selectActivityCode(w http.ResponseWriter, r *http.Request) {
	var in activityCodeInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.mutate(w, r, func(ctx context.Context, wizard *registration.Wizard) error {
		return wizard.SelectActivityCode(ctx, in.activityCode())
	})
}

// programs holds the session workspace; callers must run release once ok.
func (h *Handler) programs(w http.ResponseWriter, r *http.Request) (*registration.ProgramPicker, func(), bool) {
	ws, release, err := h.workspace(r)
	if err != nil {
		h.respondError(w, r, err)
		return nil, nil, false
	}
	if ws.Programs == nil {
		release()
		httpx.Problem(w, http.StatusNotFound, "Not Found", "program search is not configured")
		return nil, nil, false
	}
	return ws.Programs, release, true
}

func (h *Handler) setFaculty(w http.ResponseWriter, r *http.Request) {
	var in facultyInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	picker, release, ok := h.programs(w, r)
	if !ok {
		return
	}
	defer release()
	picker.SetFaculty(in.FacultyID)
	httpx.JSON(w, http.StatusOK, programsResponse(picker))
}

func (h *Handler) searchPrograms(w http.ResponseWriter, r *http.Request) {
	picker, release, ok := h.programs(w, r)
	if !ok {
		return
	}
	defer release()
	if query, ok := r.URL.Query()["q"]; ok {
		picker.Search(query[0])
	}
	httpx.JSON(w, http.StatusOK, programsResponse(picker))
}

func (h *Handler) selectProgram(w http.ResponseWriter, r *http.Request) {
	var in programInput
	if err := bind(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}
	picker, release, ok := h.programs(w, r)
	if !ok {
		return
	}
	defer release()
	selected := picker.Select(registration.Program{ID: in.ID, Name: in.Name, FacultyID: in.FacultyID})
	httpx.JSON(w, http.StatusOK, map[string]any{"selected": selected})
}

type lookupBody[T any] struct {
	Query   string `json:"query"`
	Items   []T    `json:"items"`
	Pending bool   `json:"pending"`
}

func lookupResponse[T any](res registration.LookupResult[T]) lookupBody[T] {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	return lookupBody[T]{Query: res.Query, Items: items, Pending: res.Pending}
}

func programsResponse(picker *registration.ProgramPicker) map[string]any {
	return map[string]any{
		"faculty_id": picker.Faculty(),
		"lookup":     lookupResponse(picker.Result()),
	}
}

package registrationhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/practicum-hub/practicum/internal/platform/httpx"
	"github.com/practicum-hub/practicum/internal/registration"
	"github.com/practicum-hub/practicum/internal/shared"
)

// respondError maps wizard errors onto problem documents.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *registration.ValidationError
	var ierr *inputError
	switch {
	case errors.As(err, &verr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: verr.Message,
			Field:  verr.Field,
		})
	case errors.As(err, &ierr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Invalid Input",
			Status: http.StatusUnprocessableEntity,
			Errors: ierr.fields,
		})
	case errors.Is(err, shared.ErrSessionMissing):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, registration.ErrSubmissionInFlight),
		errors.Is(err, registration.ErrAlreadySubmitted),
		errors.Is(err, registration.ErrFirstStep),
		errors.Is(err, registration.ErrLastStep),
		errors.Is(err, registration.ErrNotConfirmationStep):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, registration.ErrActivityCodeLimit),
		errors.Is(err, registration.ErrActivityCodeDup),
		errors.Is(err, registration.ErrContactLimit),
		errors.Is(err, registration.ErrContactIndex),
		errors.Is(err, registration.ErrDocumentKind),
		errors.Is(err, registration.ErrRequired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		if errors.Is(err, httpx.ErrBadRequest) || errors.Is(err, httpx.ErrPayloadTooLarge) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error("registration request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

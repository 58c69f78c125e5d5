package app

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/domain"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
)

const (
	ErrInternalServer     = "The server encountered a problem and could not process your request"
	ErrNotFound           = "The requested resource not found"
	ErrMethodNotAllowed   = "The method is not supported for this resource"
	ErrUnauthorizedAccess = "You must be authenticated to access this resource"
	ErrInvalidToken       = "Invalid or expired authentication token"
	ErrAdminRequired      = "You must be an administrator to access this resource"
	ErrFailedValidation   = "The request contains invalid fields"
)

func (app *Application) logError(r *http.Request, err error) {
	app.contextGetLogger(r).Error(err.Error())
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: app.now(),
	}

	app.sendError(w, r, status, resp)
}

func (app *Application) sendError(w http.ResponseWriter, r *http.Request, status int, resp any) {
	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unauthorizedAccessResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusUnauthorized, ErrUnauthorizedAccess)
}

func (app *Application) invalidTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	app.errorResponse(w, r, http.StatusUnauthorized, ErrInvalidToken)
}

func (app *Application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusForbidden, ErrAdminRequired)
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := appvalidator.FieldErrors(err)
	if fields == nil {
		app.badRequestResponse(w, r, err)
		return
	}

	validationErrors := make([]api.ValidationError, 0, len(fields))
	for field, issue := range fields {
		validationErrors = append(validationErrors, api.ValidationError{Field: field, Issue: issue})
	}

	slices.SortFunc(validationErrors, func(a, b api.ValidationError) int {
		return strings.Compare(a.Field, b.Field)
	})

	resp := api.ValidationErrorResponse{
		Message:          ErrFailedValidation,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        app.now(),
		ValidationErrors: validationErrors,
	}

	app.sendError(w, r, http.StatusUnprocessableEntity, resp)
}

// domainErrorResponse maps failures of the engine and the scheduler to HTTP.
// Anything that is neither a domain nor a validation error is a 500.
func (app *Application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if appvalidator.FieldErrors(err) != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	domainErr, ok := domain.AsError(err)
	if !ok {
		app.serverErrorResponse(w, r, err)
		return
	}

	var status int

	switch domainErr.Kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindValidation:
		status = http.StatusUnprocessableEntity
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindAuthorization:
		status = http.StatusForbidden
	default:
		app.serverErrorResponse(w, r, err)
		return
	}

	app.contextGetLogger(r).Warn("request rejected", "code", domainErr.Code, "error", err)

	resp := api.ErrorResponse{
		Code:      string(domainErr.Code),
		Message:   domainErr.Message,
		Seats:     toAPISeats(domainErr.Seats),
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: app.now(),
	}

	if domainErr.ConflictingShowID != 0 {
		resp.ConflictingShowId = &domainErr.ConflictingShowID
	}

	app.sendError(w, r, status, resp)
}

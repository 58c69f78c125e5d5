package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

type contextKey string

const (
	userContextKey   = contextKey("user")
	loggerContextKey = contextKey("logger")
)

func (k contextKey) String() string {
	return string(k)
}

func contextSetUser(r *http.Request, user *domain.User) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, user)
	return r.WithContext(ctx)
}

// contextGetUser returns nil for anonymous requests.
func (app *Application) contextGetUser(r *http.Request) *domain.User {
	user, ok := r.Context().Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}

	return user
}

// contextMustGetUser is for handlers mounted behind requireAuthentication.
func (app *Application) contextMustGetUser(r *http.Request) *domain.User {
	user := app.contextGetUser(r)
	if user == nil {
		panic("missing user in request context")
	}

	return user
}

func contextSetLogger(r *http.Request, logger *slog.Logger) *http.Request {
	ctx := context.WithValue(r.Context(), loggerContextKey, logger)
	return r.WithContext(ctx)
}

func (app *Application) contextGetLogger(r *http.Request) *slog.Logger {
	logger, ok := r.Context().Value(loggerContextKey).(*slog.Logger)
	if !ok {
		return app.logger
	}

	return logger
}

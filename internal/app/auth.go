package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const roleAdmin = "admin"

// userClaims are the claims issued by the identity provider. The subject
// carries the numeric user id.
type userClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for user. Only dev tooling and tests mint
// tokens; production tokens come from the identity provider.
func IssueToken(secret, issuer string, user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := userClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if user.Admin {
		claims.Role = roleAdmin
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (app *Application) parseToken(tokenString string) (*domain.User, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if app.config.JWT.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(app.config.JWT.Issuer))
	}

	var claims userClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(app.config.JWT.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id < 1 {
		return nil, errors.New("token subject is not a user id")
	}

	return &domain.User{
		ID:    id,
		Email: claims.Email,
		Admin: claims.Role == roleAdmin,
	}, nil
}

// authenticate resolves the bearer token, if any, into the request's user.
// Requests without an Authorization header continue anonymously.
func (app *Application) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || app.config.JWT.Secret == "" {
			app.invalidTokenResponse(w, r)
			return
		}

		user, err := app.parseToken(tokenString)
		if err != nil {
			app.contextGetLogger(r).Debug("rejected bearer token", "error", err)
			app.invalidTokenResponse(w, r)
			return
		}

		next.ServeHTTP(w, contextSetUser(r, user))
	})
}

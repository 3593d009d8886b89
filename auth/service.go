// Package auth issues and verifies access tokens and implements the signup,
// login and password flows.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/golang-jwt/jwt/v5"
	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/mailer"
	"github.com/natours/tours-rest/metrics"
	"github.com/natours/tours-rest/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	CookieName   = "jwt"
	loggedOut    = "loggedout"
	bearerPrefix = "Bearer "

	msgNotLoggedIn   = "You are not logged in! Please log in to get access."
	msgInvalidToken  = "Invalid token. Please log in again!"
	msgExpiredToken  = "Your token has expired! Please log in again."
	msgUserGone      = "The user belonging to this token no longer exists."
	msgStaleToken    = "Password recently changed. Please log in again!"
	msgIncorrectAuth = "Incorrect email or password"
)

type Options struct {
	Secret          string
	ExpiresIn       time.Duration
	CookieExpiresIn time.Duration
	ResetTokenTTL   time.Duration
	BcryptCost      int
	// Now replaces the clock in tests.
	Now func() time.Time
}

type Service struct {
	users   database.Repository[models.User]
	mailer  mailer.Sender
	metrics *metrics.Collector
	opts    Options
	parser  *jwt.Parser
}

func NewService(users database.Repository[models.User], sender mailer.Sender, collector *metrics.Collector, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = 10 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.CookieExpiresIn <= 0 {
		opts.CookieExpiresIn = opts.ExpiresIn
	}

	return &Service{
		users:   users,
		mailer:  sender,
		metrics: collector,
		opts:    opts,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(opts.Now),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

// SignToken issues an access token for the user id.
func (s *Service) SignToken(userID string) (string, error) {
	now := s.opts.Now()
	claims := Claims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.ExpiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry of raw.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, http_errors.InvalidTokenError(msgExpiredToken).WithCause(err)
		}
		return nil, http_errors.InvalidTokenError(msgInvalidToken).WithCause(err)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		return nil, http_errors.InvalidTokenError(msgInvalidToken)
	}
	return claims, nil
}

// extractToken reads the bearer header first and falls back to the cookie.
func extractToken(ctx *rest.EndpointContext) string {
	header := ctx.EchoCtx.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	if cookie, err := ctx.EchoCtx.Cookie(CookieName); err == nil && cookie.Value != loggedOut {
		return cookie.Value
	}
	return ""
}

// Authorizer resolves the logged in user of a request.
func (s *Service) Authorizer() rest.Authorizer {
	return func(ctx *rest.EndpointContext) (rest.Principal, rest.AuthToken, error) {
		raw := extractToken(ctx)
		if raw == "" {
			return nil, nil, http_errors.UnauthorizedError(msgNotLoggedIn)
		}

		claims, err := s.ParseToken(raw)
		if err != nil {
			return nil, nil, err
		}

		user, err := s.findUser(ctx.Context(), claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if user == nil {
			return nil, nil, http_errors.InvalidTokenError(msgUserGone)
		}
		if user.ChangedPasswordAfter(claims.IssuedAt.Time) {
			return nil, nil, http_errors.StaleTokenError(msgStaleToken)
		}

		token := &Token{raw: raw, claims: claims, role: string(user.Role), now: s.opts.Now}
		return *user, token, nil
	}
}

func (s *Service) findUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, http_errors.InvalidTokenError(msgInvalidToken)
	}
	return s.users.FindById(ctx, oid, nil)
}

// UserFromContext returns the logged in user set by the authorizer.
func UserFromContext(ctx *rest.EndpointContext) (models.User, bool) {
	user, ok := ctx.Principal.(models.User)
	return user, ok
}

// passwordChangedAt is one second in the past so that a token signed right
// after the change is not considered stale.
func (s *Service) passwordChangedAt() time.Time {
	return s.opts.Now().Add(-time.Second)
}

package auth

import (
	"context"
	"net/http"
	"time"

	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/mailer"
	"github.com/natours/tours-rest/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	msgProvideCredentials = "Please provide email and password!"
	msgNoUserWithEmail    = "There is no user with that email address."
	msgEmailFailed        = "There was an error sending the email. Try again later!"
	msgTokenSent          = "Token sent to email!"
	msgResetInvalid       = "Token is invalid or has expired"
	msgWrongPassword      = "Your current password is wrong."

	logoutCookieTTL = 10 * time.Second
)

type SignupInput struct {
	Name            string `json:"name" validate:"required,max=80" normalize:"trim,squash" sanitize:"strict"`
	Email           string `json:"email" validate:"required,email" normalize:"trim,lowercase"`
	Photo           string `json:"photo" normalize:"trim"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// LoginInput is checked by the handler so that a missing field gets the
// login specific message.
type LoginInput struct {
	Email    string `json:"email" normalize:"trim,lowercase"`
	Password string `json:"password"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email" normalize:"trim,lowercase"`
}

type ResetPasswordInput struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type UpdatePasswordInput struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// LoginRateLimit slows down password guessing.
var LoginRateLimit = rest.RateLimit{Max: 10, Window: 15 * time.Minute, Key: "login"}

// Endpoints returns the /users auth routes.
func (s *Service) Endpoints() []*rest.Endpoint {
	return []*rest.Endpoint{
		{
			Name:       "Signup",
			Method:     rest.MethodPOST,
			Path:       "/signup",
			Public:     true,
			ActionType: rest.ActionTypeSignup,
			Model:      "User",
			BodyParams: func() any { return &SignupInput{} },
			Handler:    s.signup,
		},
		{
			Name:        "Login",
			Method:      rest.MethodPOST,
			Path:        "/login",
			Public:      true,
			ActionType:  rest.ActionTypeLogin,
			Model:       "User",
			BodyParams:  func() any { return &LoginInput{} },
			RateLimiter: func(*rest.EndpointContext) rest.RateLimit { return LoginRateLimit },
			Handler:     s.login,
		},
		{
			Name:          "Logout",
			Method:        rest.MethodGET,
			Path:          "/logout",
			Public:        true,
			ActionType:    rest.ActionTypeLogout,
			AuditDisabled: true,
			Handler:       s.logout,
		},
		{
			Name:       "ForgotPassword",
			Method:     rest.MethodPOST,
			Path:       "/forgotPassword",
			Public:     true,
			ActionType: rest.ActionTypeForgotPassword,
			Model:      "User",
			BodyParams: func() any { return &ForgotPasswordInput{} },
			Handler:    s.forgotPassword,
		},
		{
			Name:       "ResetPassword",
			Method:     rest.MethodPATCH,
			Path:       "/resetPassword/:token",
			Public:     true,
			ActionType: rest.ActionTypeResetPassword,
			Model:      "User",
			Accepts:    []rest.Param{rest.NewPathParam("token", rest.PathParamTypeString)},
			BodyParams: func() any { return &ResetPasswordInput{} },
			Handler:    s.resetPassword,
		},
		{
			Name:       "UpdateMyPassword",
			Method:     rest.MethodPATCH,
			Path:       "/updateMyPassword",
			ActionType: rest.ActionTypeChangePassword,
			Model:      "User",
			BodyParams: func() any { return &UpdatePasswordInput{} },
			Handler:    s.updateMyPassword,
		},
	}
}

func (s *Service) signup(ctx *rest.EndpointContext) error {
	input := ctx.ParsedBody.(*SignupInput)

	hash, err := HashPassword(input.Password, s.opts.BcryptCost)
	if err != nil {
		return err
	}

	user, err := s.users.Create(ctx.Context(), models.User{
		Name:     input.Name,
		Email:    input.Email,
		Photo:    input.Photo,
		Role:     models.RoleUser,
		Password: hash,
	})
	if err != nil {
		s.metrics.RecordAuthEvent("signup", false)
		return err
	}
	s.metrics.RecordAuthEvent("signup", true)

	// The account exists even when the welcome email cannot be sent.
	welcomeURL := baseURL(ctx) + "/me"
	sendErr := s.mailer.SendWelcome(ctx.Context(), recipient(*user), welcomeURL)
	s.metrics.RecordEmail(sendErr)
	if sendErr != nil {
		ctx.App.Warnf("failed to send welcome email to %s: %v", user.Email, sendErr)
	}

	return s.sendToken(ctx, *user, http.StatusCreated)
}

func (s *Service) login(ctx *rest.EndpointContext) error {
	input := ctx.ParsedBody.(*LoginInput)
	if input.Email == "" || input.Password == "" {
		return http_errors.ValidationError(msgProvideCredentials)
	}

	filter := database.NewFilter().
		WithWhere(database.NewWhere().Eq("email", input.Email)).
		WithHidden("password")
	user, err := s.users.FindOne(ctx.Context(), filter)
	if err != nil {
		return err
	}
	if user == nil || !CheckPassword(user.Password, input.Password) {
		s.metrics.RecordAuthEvent("login", false)
		return http_errors.UnauthorizedError(msgIncorrectAuth)
	}
	s.metrics.RecordAuthEvent("login", true)

	return s.sendToken(ctx, *user, http.StatusOK)
}

func (s *Service) logout(ctx *rest.EndpointContext) error {
	ctx.SetCookie(CookieName, loggedOut, logoutCookieTTL)
	return ctx.JSON(map[string]string{"status": rest.StatusSuccess})
}

func (s *Service) forgotPassword(ctx *rest.EndpointContext) error {
	input := ctx.ParsedBody.(*ForgotPasswordInput)

	user, err := s.users.FindOne(ctx.Context(), database.NewFilter().
		WithWhere(database.NewWhere().Eq("email", input.Email)))
	if err != nil {
		return err
	}
	if user == nil {
		return http_errors.NotFoundError(msgNoUserWithEmail)
	}

	raw, digest, err := NewResetToken()
	if err != nil {
		return err
	}
	expires := s.opts.Now().Add(s.opts.ResetTokenTTL)
	if err := s.users.UpdateById(ctx.Context(), user.ID, bson.M{
		"$set": bson.M{"passwordResetToken": digest, "passwordResetExpires": expires},
	}); err != nil {
		return err
	}

	resetURL := baseURL(ctx) + "/api/v1/users/resetPassword/" + raw
	sendErr := s.mailer.SendPasswordReset(ctx.Context(), recipient(*user), resetURL, s.opts.ResetTokenTTL)
	s.metrics.RecordEmail(sendErr)
	if sendErr != nil {
		s.metrics.RecordAuthEvent("forgot_password", false)
		if err := s.clearResetToken(ctx.Context(), user.ID); err != nil {
			ctx.App.Errorf("failed to roll back reset token of %s: %v", user.Email, err)
		}
		return http_errors.InternalServerError(msgEmailFailed).WithCause(sendErr)
	}
	s.metrics.RecordAuthEvent("forgot_password", true)

	return ctx.RespondAndLog(rest.Message(msgTokenSent), user.ID, rest.ResponseTypeJSON)
}

func (s *Service) clearResetToken(ctx context.Context, id bson.ObjectID) error {
	// The request may already be cancelled, the rollback must still happen.
	return s.users.UpdateById(context.WithoutCancel(ctx), id, bson.M{
		"$unset": bson.M{"passwordResetToken": "", "passwordResetExpires": ""},
	})
}

func (s *Service) resetPassword(ctx *rest.EndpointContext) error {
	input := ctx.ParsedBody.(*ResetPasswordInput)
	raw, _ := ctx.PathParam("token").(string)

	filter := database.NewFilter().WithWhere(database.NewWhere().
		Eq("passwordResetToken", HashResetToken(raw)).
		Gt("passwordResetExpires", s.opts.Now()))
	user, err := s.users.FindOne(ctx.Context(), filter)
	if err != nil {
		return err
	}
	if user == nil {
		s.metrics.RecordAuthEvent("reset_password", false)
		return http_errors.ValidationError(msgResetInvalid)
	}

	updated, err := s.replacePassword(ctx.Context(), user.ID, input.Password, true)
	if err != nil {
		return err
	}
	s.metrics.RecordAuthEvent("reset_password", true)

	return s.sendToken(ctx, *updated, http.StatusOK)
}

func (s *Service) updateMyPassword(ctx *rest.EndpointContext) error {
	input := ctx.ParsedBody.(*UpdatePasswordInput)
	current, ok := UserFromContext(ctx)
	if !ok {
		return http_errors.UnauthorizedError(msgNotLoggedIn)
	}

	user, err := s.users.FindById(ctx.Context(), current.ID, database.NewFilter().WithHidden("password"))
	if err != nil {
		return err
	}
	if user == nil {
		return http_errors.InvalidTokenError(msgUserGone)
	}
	if !CheckPassword(user.Password, input.PasswordCurrent) {
		s.metrics.RecordAuthEvent("change_password", false)
		return http_errors.UnauthorizedError(msgWrongPassword)
	}

	updated, err := s.replacePassword(ctx.Context(), user.ID, input.Password, false)
	if err != nil {
		return err
	}
	s.metrics.RecordAuthEvent("change_password", true)

	return s.sendToken(ctx, *updated, http.StatusOK)
}

func (s *Service) replacePassword(ctx context.Context, id bson.ObjectID, password string, clearReset bool) (*models.User, error) {
	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": bson.M{"password": hash, "passwordChangedAt": s.passwordChangedAt()},
	}
	if clearReset {
		update["$unset"] = bson.M{"passwordResetToken": "", "passwordResetExpires": ""}
	}

	user, err := s.users.FindByIdAndUpdate(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, http_errors.NotFoundError("No document found with that ID")
	}
	return user, nil
}

// sendToken signs a token, stores it in the cookie and answers with the user.
func (s *Service) sendToken(ctx *rest.EndpointContext, user models.User, status int) error {
	token, err := s.SignToken(user.ID.Hex())
	if err != nil {
		return err
	}
	ctx.SetCookie(CookieName, token, s.opts.CookieExpiresIn)

	user.Password = ""
	response := rest.Envelope{
		Status: rest.StatusSuccess,
		Token:  token,
		Data:   map[string]any{"user": user},
	}
	return ctx.RespondAndLog(response, user.ID, rest.ResponseTypeJSON, status)
}

func recipient(user models.User) mailer.Recipient {
	return mailer.Recipient{Email: user.Email, Name: user.Name}
}

func baseURL(ctx *rest.EndpointContext) string {
	return ctx.EchoCtx.Scheme() + "://" + ctx.EchoCtx.Request().Host
}

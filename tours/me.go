package tours

import (
	rest "github.com/natours/tours-rest"
	"github.com/natours/tours-rest/auth"
	"github.com/natours/tours-rest/database"
	"github.com/natours/tours-rest/http_errors"
	"github.com/natours/tours-rest/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	msgNotForPasswords = "This route is not for password updates. Please use /updateMyPassword."
	msgNothingToUpdate = "Invalid input data. Provide a name or an email to update."
)

// UpdateMeInput holds the fields users may change on their own account. The
// password fields are only declared to be rejected.
type UpdateMeInput struct {
	Name            string `json:"name" validate:"omitempty,max=80" normalize:"trim,squash" sanitize:"strict"`
	Email           string `json:"email" validate:"omitempty,email" normalize:"trim,lowercase"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func meEndpoints(users database.Repository[models.User]) []*rest.Endpoint {
	return []*rest.Endpoint{
		{
			Name:          "GetMe",
			Method:        rest.MethodGET,
			Path:          "/me",
			ActionType:    rest.ActionTypeRead,
			Model:         "User",
			AuditDisabled: true,
			Handler: func(ctx *rest.EndpointContext) error {
				user, err := currentUser(ctx, users)
				if err != nil {
					return err
				}
				return ctx.JSON(rest.DocumentEnvelope(user))
			},
		},
		{
			Name:       "UpdateMe",
			Method:     rest.MethodPATCH,
			Path:       "/updateMe",
			ActionType: rest.ActionTypeUpdate,
			Model:      "User",
			BodyParams: func() any { return &UpdateMeInput{} },
			Handler: func(ctx *rest.EndpointContext) error {
				return updateMe(ctx, users)
			},
		},
	}
}

func currentUser(ctx *rest.EndpointContext, users database.Repository[models.User]) (*models.User, error) {
	principal, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, http_errors.UnauthorizedError("You are not logged in! Please log in to get access.")
	}
	user, err := users.FindById(ctx.Context(), principal.ID, nil)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, http_errors.InvalidTokenError("The user belonging to this token no longer exists.")
	}
	return user, nil
}

func updateMe(ctx *rest.EndpointContext, users database.Repository[models.User]) error {
	input := ctx.ParsedBody.(*UpdateMeInput)
	if input.Password != "" || input.PasswordConfirm != "" {
		return http_errors.ValidationError(msgNotForPasswords)
	}

	set := bson.M{}
	if input.Name != "" {
		set["name"] = input.Name
	}
	if input.Email != "" {
		set["email"] = input.Email
	}
	if len(set) == 0 {
		return http_errors.ValidationError(msgNothingToUpdate)
	}

	principal, ok := auth.UserFromContext(ctx)
	if !ok {
		return http_errors.UnauthorizedError("You are not logged in! Please log in to get access.")
	}
	updated, err := users.FindByIdAndUpdate(ctx.Context(), principal.ID, bson.M{database.SET: set})
	if err != nil {
		return err
	}
	if updated == nil {
		return http_errors.InvalidTokenError("The user belonging to this token no longer exists.")
	}

	return ctx.RespondAndLog(rest.Envelope{
		Status: rest.StatusSuccess,
		Data:   map[string]any{"user": updated},
	}, updated.ID, rest.ResponseTypeJSON)
}

package models

import (
	"time"

	"github.com/natours/tours-rest/database"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// User is a principal. Secrets never leave the server: they carry json:"-"
// and the password is also kept out of every projection unless a query asks
// for it explicitly.
type User struct {
	ID                   bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string        `bson:"name" json:"name" validate:"required,max=80" normalize:"trim,squash" sanitize:"strict"`
	Email                string        `bson:"email" json:"email" validate:"required,email" normalize:"trim,lowercase"`
	Photo                string        `bson:"photo" json:"photo" normalize:"trim"`
	Role                 Role          `bson:"role" json:"role" validate:"omitempty,oneof=user admin dba"`
	Password             string        `bson:"password,omitempty" json:"-" filter:"fields=never"`
	PasswordChangedAt    *time.Time    `bson:"passwordChangedAt,omitempty" json:"-"`
	PasswordResetToken   string        `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time    `bson:"passwordResetExpires,omitempty" json:"-"`
	CreatedAt            time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time     `bson:"updatedAt" json:"updatedAt"`
	Version              int           `bson:"__v" json:"-" filter:"fields=never"`
}

const DefaultUserPhoto = "default.jpg"

func (User) GetTableName() string     { return "users" }
func (User) GetModelName() string     { return "User" }
func (User) GetConnectorName() string { return database.DefaultConnectorName }
func (u User) GetId() any             { return u.ID }

func (u User) GetPrincipalID() string   { return u.ID.Hex() }
func (u User) GetPrincipalRole() string { return string(u.Role) }

func (u *User) BeforeCreate() error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Photo == "" {
		u.Photo = DefaultUserPhoto
	}
	return nil
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat. Both sides are compared in whole seconds.
func (u User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > iat.Unix()
}

func (User) DefineMongoIndexes() []database.MongoIndexDefinition {
	return []database.MongoIndexDefinition{
		database.NewMongoSimpleIndex("email", true),
		database.NewMongoSimpleIndex("passwordResetToken", false).WithSparse(true),
	}
}

// Package models declares the documents stored by the API.
package models

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleDBA   Role = "dba"
)

func (r Role) RoleName() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleDBA:
		return true
	}
	return false
}

package rest

type Principal interface {
	GetPrincipalID() string
	GetPrincipalRole() string
}

// Authorizer resolves the principal of a request. It runs for every endpoint
// that is not public and must return an error when nobody is logged in.
type Authorizer func(*EndpointContext) (Principal, AuthToken, error)

type AuthToken interface {
	IsValid() bool
	GetUserId() string
	GetUserType() string
	GetToken() string
	GetIssuedAt() int64
	GetExpiresAt() int64
}

type EndpointRole interface {
	RoleName() string
}

// hasRole reports whether the principal holds one of the allowed roles. An
// empty allow-list admits every authenticated principal.
func hasRole(principal Principal, roles []EndpointRole) bool {
	if len(roles) == 0 {
		return true
	}
	if principal == nil {
		return false
	}

	current := principal.GetPrincipalRole()
	for _, role := range roles {
		if role != nil && role.RoleName() == current {
			return true
		}
	}
	return false
}

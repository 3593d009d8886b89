package rest

type ResponseType string

const (
	ResponseTypeJSON      ResponseType = "json"
	ResponseTypeText      ResponseType = "text"
	ResponseTypeNoContent ResponseType = "no_content"
)

type EndpointMethod string

const (
	MethodHEAD   EndpointMethod = "Head"
	MethodGET    EndpointMethod = "Get"
	MethodPOST   EndpointMethod = "Post"
	MethodPUT    EndpointMethod = "Put"
	MethodPATCH  EndpointMethod = "Patch"
	MethodDELETE EndpointMethod = "Delete"
)

type ParamLocation string

const (
	InQuery  ParamLocation = "query"
	InPath   ParamLocation = "path"
	InHeader ParamLocation = "header"
)

type PathParamType string

const (
	PathParamTypeString   PathParamType = "string"
	PathParamTypeInt      PathParamType = "int"
	PathParamTypeFloat    PathParamType = "float"
	PathParamTypeBool     PathParamType = "bool"
	PathParamTypeDate     PathParamType = "date"
	PathParamTypeObjectID PathParamType = "objectid"
)

type QueryParamType string

const (
	QueryParamTypeString   QueryParamType = "string"
	QueryParamTypeInt      QueryParamType = "int"
	QueryParamTypeFloat    QueryParamType = "float"
	QueryParamTypeBool     QueryParamType = "bool"
	QueryParamTypeDate     QueryParamType = "date"
	QueryParamTypeObjectID QueryParamType = "objectid"
	QueryParamTypeFilter   QueryParamType = "filter"
	QueryParamTypeWhere    QueryParamType = "where"
)

type HeaderParamType string

const (
	HeaderParamTypeString HeaderParamType = "string"
	HeaderParamTypeInt    HeaderParamType = "int"
)

type ActionType string

const (
	ActionTypeRead           ActionType = "read"
	ActionTypeCreate         ActionType = "create"
	ActionTypeUpdate         ActionType = "update"
	ActionTypeDelete         ActionType = "delete"
	ActionTypeSignup         ActionType = "signup"
	ActionTypeLogin          ActionType = "login"
	ActionTypeLogout         ActionType = "logout"
	ActionTypeForgotPassword ActionType = "forgot_password"
	ActionTypeResetPassword  ActionType = "reset_password"
	ActionTypeChangePassword ActionType = "change_password"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

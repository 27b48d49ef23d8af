package domain

// Standard roles used by the HTTP surface to protect administrative routes.
const (
	RoleAdmin = "ROLE_ADMIN"
	RoleUser  = "ROLE_USER"
)

package mongodb

// DefaultTokensCollection is the collection used when none is configured.
const DefaultTokensCollection = "tokens"

// Field names of the token document.
const (
	fieldToken           = "token"
	fieldUser            = "user"
	fieldRoles           = "roles"
	fieldUpdated         = "updated"
	fieldExpiration      = "expiration"
	fieldFinalExpiration = "finalExpiration"
)

package models

// PrincipalLocalsKey is the fiber locals key holding the authenticated *Principal.
const PrincipalLocalsKey = "principal"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   uint
	Username string
	IsAdmin  bool
}

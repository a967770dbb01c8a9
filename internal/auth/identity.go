package auth

import "github.com/iliyamo/food-delivery-api/internal/model"

// Identity is the resolved caller of a protected request: the outcome of a
// successful gate evaluation.  It travels through the request context so
// handlers never re-parse the token.
type Identity struct {
	UserID    uint64
	Role      model.Role
	SessionID string
}

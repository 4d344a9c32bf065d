package auth

import "github.com/vivenzalife/vivenza/internal/apperr"

// RequireCaller is the gate for every mutating operation: an empty caller id
// means the request carried no identity.
func RequireCaller(callerID string) error {
	if callerID == "" {
		return apperr.NewUnauthorized()
	}
	return nil
}

// HasCaller is the read-side counterpart. Reads without an identity return an
// empty result instead of failing.
func HasCaller(callerID string) bool {
	return callerID != ""
}

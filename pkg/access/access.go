// Package access implements the pure access-control evaluation for drops:
// a product of ownership, visibility and passphrase state mapped to a single
// decision the HTTP layer can translate to a status code.
package access

import (
	"github.com/teledrop/teledrop/pkg/models"
)

// Decision is the outcome of an access evaluation.
type Decision int

const (
	Allow Decision = iota
	DenyNotFound
	DenyAuthRequired
	DenyPasswordRequired
	DenyPasswordInvalid
	DenyForbidden
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyNotFound:
		return "deny_not_found"
	case DenyAuthRequired:
		return "deny_auth_required"
	case DenyPasswordRequired:
		return "deny_password_required"
	case DenyPasswordInvalid:
		return "deny_password_invalid"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return "unknown"
	}
}

// Err maps a deny decision to its sentinel error; Allow maps to nil.
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case DenyNotFound:
		return models.ErrDropNotFound
	case DenyAuthRequired:
		return models.ErrAuthRequired
	case DenyPasswordRequired:
		return models.ErrPasswordRequired
	case DenyPasswordInvalid:
		return models.ErrPasswordInvalid
	default:
		return models.ErrForbidden
	}
}

// Caller describes the identity a request resolved to.
type Caller struct {
	// Identity is the resolved identity string, or models.OwnerAnonymous.
	Identity string

	// Authenticated is true when credentials were presented and verified,
	// regardless of whether they match the drop's owner. It distinguishes
	// 401 (no credentials) from 403 (wrong identity) on private drops.
	Authenticated bool
}

// Anonymous is the caller used when no credentials were presented.
var Anonymous = Caller{Identity: models.OwnerAnonymous}

// PasswordVerifier checks a clear passphrase against a stored verifier.
type PasswordVerifier interface {
	Verify(clear, encoded string) bool
}

// Evaluate applies the read-access decision table. First match wins:
//
//  1. missing drop                                   -> DenyNotFound
//  2. private drop, caller not owner                 -> DenyAuthRequired
//     (no credentials) or DenyForbidden (credentials for another identity)
//  3. passphrase set, caller not owner, none given   -> DenyPasswordRequired
//  4. passphrase set, caller not owner, wrong given  -> DenyPasswordInvalid
//  5. otherwise                                      -> Allow
//
// An authenticated owner bypasses the passphrase entirely.
func Evaluate(d *models.Drop, caller Caller, password string, verifier PasswordVerifier) Decision {
	if d == nil {
		return DenyNotFound
	}

	isOwner := caller.Authenticated && d.IsOwnedBy(caller.Identity)

	if d.Private && !isOwner {
		if !caller.Authenticated {
			return DenyAuthRequired
		}
		return DenyForbidden
	}

	if d.HasPassphrase() && !isOwner {
		if password == "" {
			return DenyPasswordRequired
		}
		if !verifier.Verify(password, d.PassphraseHash) {
			return DenyPasswordInvalid
		}
	}

	return Allow
}

// EvaluateMutate applies the owner-only rule for mutating operations.
// A non-owner is refused outright; the passphrase never grants mutation.
func EvaluateMutate(d *models.Drop, caller Caller) Decision {
	if d == nil {
		return DenyNotFound
	}
	if !caller.Authenticated {
		return DenyAuthRequired
	}
	if !d.IsOwnedBy(caller.Identity) {
		return DenyForbidden
	}
	return Allow
}

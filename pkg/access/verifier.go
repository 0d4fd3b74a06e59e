package access

import (
	"github.com/alexedwards/argon2id"

	"github.com/teledrop/teledrop/internal/logger"
)

// Argon2Params tunes the passphrase verifier. Zero values fall back to the
// argon2id defaults (64 MiB memory, 1 iteration, 32-byte key).
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Verifier hashes and verifies drop passphrases with Argon2id.
type Verifier struct {
	params *argon2id.Params
}

// NewVerifier builds a Verifier from the configured parameters.
func NewVerifier(p Argon2Params) *Verifier {
	params := *argon2id.DefaultParams
	if p.Memory != 0 {
		params.Memory = p.Memory
	}
	if p.Iterations != 0 {
		params.Iterations = p.Iterations
	}
	if p.Parallelism != 0 {
		params.Parallelism = p.Parallelism
	}
	if p.SaltLength != 0 {
		params.SaltLength = p.SaltLength
	}
	if p.KeyLength != 0 {
		params.KeyLength = p.KeyLength
	}
	return &Verifier{params: &params}
}

// Hash produces a fresh encoded verifier for the clear passphrase.
func (v *Verifier) Hash(clear string) (string, error) {
	return argon2id.CreateHash(clear, v.params)
}

// Verify checks the clear passphrase against the stored verifier using a
// constant-time comparison. A malformed verifier counts as a failed check
// rather than an error: the caller sees DenyPasswordInvalid, never a crash.
func (v *Verifier) Verify(clear, encoded string) bool {
	match, err := argon2id.ComparePasswordAndHash(clear, encoded)
	if err != nil {
		logger.Warn("unparseable passphrase verifier", "error", err)
		return false
	}
	return match
}

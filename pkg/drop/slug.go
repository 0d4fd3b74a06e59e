package drop

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/teledrop/teledrop/pkg/models"
)

// slugPattern is the shape a caller-supplied slug must have. Generated slugs
// are alphanumeric only and always match.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// validateSlug checks a caller-supplied slug against the pattern and the
// reserved list.
func (s *Service) validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug must be 4-64 characters of [A-Za-z0-9_-]", models.ErrSlugInvalid)
	}
	if _, ok := s.reserved[slug]; ok {
		return fmt.Errorf("%w: slug %q is reserved", models.ErrSlugInvalid, slug)
	}
	return nil
}

// generateSlug draws a random slug from the configured alphabet using
// crypto/rand. Uniform per character; collisions are handled by the caller's
// retry loop and ultimately by the unique index on the slug column.
func (s *Service) generateSlug() (string, error) {
	alphabet := s.opts.SlugAlphabet
	max := big.NewInt(int64(len(alphabet)))

	out := make([]byte, s.opts.SlugLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate slug: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// Package drop implements the drop lifecycle coordinator: the transactional
// core that creates, reads, updates and deletes drops together with their
// backing blob, keeping database and storage consistent across failures.
package drop

import (
	"time"

	"github.com/teledrop/teledrop/pkg/access"
	"github.com/teledrop/teledrop/pkg/blob"
	"github.com/teledrop/teledrop/pkg/store"
)

// Limits bound the create path inputs.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4096
	MaxPassphraseLength  = 1024
	MaxSlugLength        = 64
	MinSlugLength        = 4

	// slugRetries bounds auto-generated slug collisions before the create
	// fails with ErrSlugExhausted.
	slugRetries = 8
)

// Options tunes the coordinator. Zero values fall back to sane defaults.
type Options struct {
	// MaxUploadSize is the byte cap on uploads; 0 means unlimited.
	MaxUploadSize int64

	// ChunkSize is the streaming chunk size for uploads.
	ChunkSize int

	// Deadline bounds a single upload; 0 means none.
	Deadline time.Duration

	// SlugAlphabet and SlugLength shape auto-generated slugs.
	SlugAlphabet string
	SlugLength   int

	// ReservedSlugs can never be claimed by a drop.
	ReservedSlugs []string

	// FavoriteTouch makes the favorite toggle bump updated_at, restoring
	// the legacy behavior. Default off.
	FavoriteTouch bool
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = blob.DefaultChunkSize
	}
	if o.SlugAlphabet == "" {
		o.SlugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	}
	if o.SlugLength < MinSlugLength {
		o.SlugLength = 8
	}
}

// Service coordinates drop operations over the metadata store and the blob
// store. All collaborators are injected; the service holds no global state.
type Service struct {
	store    *store.Store
	blobs    blob.Store
	verifier *access.Verifier
	opts     Options

	reserved map[string]struct{}
}

// NewService builds a coordinator.
func NewService(st *store.Store, blobs blob.Store, verifier *access.Verifier, opts Options) *Service {
	opts.applyDefaults()

	reserved := make(map[string]struct{}, len(opts.ReservedSlugs))
	for _, s := range opts.ReservedSlugs {
		reserved[s] = struct{}{}
	}

	return &Service{
		store:    st,
		blobs:    blobs,
		verifier: verifier,
		opts:     opts,
		reserved: reserved,
	}
}

// Verifier exposes the passphrase verifier for the HTTP layer's access
// checks on download and preview.
func (s *Service) Verifier() *access.Verifier {
	return s.verifier
}

// ChunkSize returns the configured streaming chunk size.
func (s *Service) ChunkSize() int {
	return s.opts.ChunkSize
}

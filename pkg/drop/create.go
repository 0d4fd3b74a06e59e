package drop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

// CreateInput carries the metadata for a new drop. The file bytes stream in
// separately so the coordinator never buffers the payload.
type CreateInput struct {
	// Slug is the caller-chosen public identifier; empty means auto-generate.
	Slug string

	Title       string
	Description string

	// Passphrase, when non-empty, protects downloads. Stored only as an
	// Argon2id verifier.
	Passphrase string

	Private  bool
	Favorite bool

	// OwnerID is the authenticated identity creating the drop.
	OwnerID string

	// FileName is the original name of the uploaded file.
	FileName string

	// MediaType is the declared content type; empty falls back to
	// application/octet-stream, malformed is rejected.
	MediaType string
}

func (in *CreateInput) validate() error {
	if in.OwnerID == "" || in.OwnerID == models.OwnerAnonymous {
		return models.ErrAuthRequired
	}
	if in.FileName == "" {
		return fmt.Errorf("%w: file name is required", models.ErrValidation)
	}
	if len(in.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", models.ErrValidation, MaxTitleLength)
	}
	if len(in.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", models.ErrValidation, MaxDescriptionLength)
	}
	if len(in.Passphrase) > MaxPassphraseLength {
		return fmt.Errorf("%w: passphrase exceeds %d characters", models.ErrValidation, MaxPassphraseLength)
	}
	return nil
}

// normalizeMediaType parses the declared content type down to type/subtype.
// The octet-stream fallback applies only when no type was declared at all; a
// declared type that does not parse is a validation error.
func normalizeMediaType(declared string) (string, error) {
	if declared == "" {
		return "application/octet-stream", nil
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.Contains(mt, "/") {
		return "", fmt.Errorf("%w: malformed media type %q", models.ErrValidation, declared)
	}
	return mt, nil
}

// Create makes a new drop from streamed file bytes.
//
// Ordering is chosen so that no committed database row ever points at a
// missing blob: the drop row and the blob publish happen inside the metadata
// transaction, and a failure after the blob was published deletes the blob
// again before the error is returned.
func (s *Service) Create(ctx context.Context, in CreateInput, body io.Reader) (*models.Snapshot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Slug != "" {
		if err := s.validateSlug(in.Slug); err != nil {
			return nil, err
		}
	}
	mediaType, err := normalizeMediaType(in.MediaType)
	if err != nil {
		return nil, err
	}

	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}

	var passphraseHash string
	if in.Passphrase != "" {
		h, err := s.verifier.Hash(in.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to hash passphrase: %w", err)
		}
		passphraseHash = h
	}

	drop := &models.Drop{
		ID:             uuid.NewString(),
		Slug:           in.Slug,
		Title:          in.Title,
		Description:    in.Description,
		PassphraseHash: passphraseHash,
		Private:        in.Private,
		Favorite:       in.Favorite,
		OwnerID:        in.OwnerID,
	}

	fileID := uuid.NewString()
	storageKey := models.StorageKeyFor(fileID)

	blobCommitted := false
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := s.insertWithSlug(ctx, tx, drop); err != nil {
			return err
		}

		size, hash, err := s.writeBlob(ctx, storageKey, body)
		if err != nil {
			return err
		}
		blobCommitted = true

		file := &models.File{
			ID:          fileID,
			DropID:      drop.ID,
			Name:        in.FileName,
			MediaType:   mediaType,
			Size:        size,
			ContentHash: hash,
			StorageKey:  storageKey,
		}
		if err := tx.CreateFile(ctx, file); err != nil {
			return fmt.Errorf("failed to record file: %w", err)
		}
		drop.File = file
		return nil
	})
	if err != nil {
		// Compensation: the metadata rolled back, so a published blob is
		// now orphaned and must go.
		if blobCommitted {
			if delErr := s.blobs.Delete(ctx, storageKey); delErr != nil {
				logger.Warn("failed to delete orphaned blob after aborted create",
					"key", storageKey, "error", delErr)
			}
		}
		return nil, err
	}

	logger.Info("drop created",
		"slug", drop.Slug, "owner", drop.OwnerID, "size", drop.File.Size)
	return drop.ToSnapshot(), nil
}

// insertWithSlug inserts the drop row, resolving the slug first. A
// caller-supplied slug gets exactly one attempt; an empty slug is drawn from
// the generator with a bounded number of retries, where a collision on the
// unique slug index consumes a retry instead of surfacing to the caller.
func (s *Service) insertWithSlug(ctx context.Context, tx *store.Store, drop *models.Drop) error {
	if drop.Slug != "" {
		return tx.CreateDrop(ctx, drop)
	}

	for attempt := 0; attempt < slugRetries; attempt++ {
		candidate, err := s.generateSlug()
		if err != nil {
			return err
		}
		drop.Slug = candidate

		// The insert runs under a savepoint so a collision rolls back the
		// attempt alone, not the surrounding create transaction.
		err = tx.WithTx(ctx, func(inner *store.Store) error {
			return inner.CreateDrop(ctx, drop)
		})
		if errors.Is(err, models.ErrSlugTaken) {
			continue
		}
		return err
	}
	return models.ErrSlugExhausted
}

// writeBlob streams body into the blob store under key, hashing and counting
// as it goes. The session is aborted on any failure, including a breached
// size cap, so no partial object survives.
func (s *Service) writeBlob(ctx context.Context, key string, body io.Reader) (int64, string, error) {
	session, err := s.blobs.OpenWrite(ctx, key)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open blob write: %w", err)
	}

	hasher := sha256.New()
	buf := make([]byte, s.opts.ChunkSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			_ = session.Abort()
			return 0, "", err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			total += int64(n)
			if s.opts.MaxUploadSize > 0 && total > s.opts.MaxUploadSize {
				_ = session.Abort()
				return 0, "", fmt.Errorf("%w: upload exceeds %d bytes",
					models.ErrSizeLimitExceeded, s.opts.MaxUploadSize)
			}
			if _, err := session.Write(buf[:n]); err != nil {
				_ = session.Abort()
				return 0, "", fmt.Errorf("failed to write blob: %w", err)
			}
			hasher.Write(buf[:n])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			_ = session.Abort()
			return 0, "", fmt.Errorf("failed to read upload body: %w", readErr)
		}
	}

	if err := session.Commit(); err != nil {
		_ = session.Abort()
		return 0, "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}

package checkout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"hopper/internal/archive"
	"hopper/internal/logging"
	"hopper/internal/store"
)

// imageExtensions are the member types bundled for publication.
var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "tif", "tiff", "eps"}

// BlobUploader pushes one named stream to remote storage and returns a
// publicly resolvable URI.
type BlobUploader interface {
	Upload(ctx context.Context, name string, content io.Reader) (string, error)
}

// Handoff queues validated attempts and publishes their content.
type Handoff struct {
	store    *store.Store
	uploader BlobUploader
	logger   *slog.Logger
}

// New wires a handoff. uploader may be nil when publication is handled
// out of process; Publish then fails explicitly.
func New(st *store.Store, uploader BlobUploader, logger *slog.Logger) *Handoff {
	return &Handoff{
		store:    st,
		uploader: uploader,
		logger:   logging.NewComponentLogger(logger, "checkout"),
	}
}

// Queue flags a validated attempt for checkout. Invalid attempts refuse.
func (h *Handoff) Queue(ctx context.Context, attemptID int64) error {
	attempt, err := h.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("attempt %d not found", attemptID)
	}
	if !attempt.IsValid {
		return fmt.Errorf("attempt %d is invalid, refusing checkout", attemptID)
	}
	if err := h.store.SetQueuedForCheckout(ctx, attemptID, true); err != nil {
		return err
	}
	h.logger.Info("attempt queued for checkout",
		logging.Int64(logging.FieldAttemptID, attemptID))
	return nil
}

// ImageBundle repackages every image member into one in-memory archive.
// The returned names list what went into the bundle; an archive without
// images yields an empty bundle, not an error.
func ImageBundle(insp *archive.Inspector) (*bytes.Reader, []string, error) {
	var names []string
	for _, ext := range imageExtensions {
		for _, member := range insp.OpenMembers(ext) {
			names = append(names, member.Name)
		}
	}
	bundle, err := insp.ExtractSubset(names...)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle images: %w", err)
	}
	return bundle, names, nil
}

// Publish uploads the attempt's PDF members and its image bundle, returning
// the resolved URIs in upload order.
func (h *Handoff) Publish(ctx context.Context, attempt *store.Attempt, insp *archive.Inspector) ([]string, error) {
	if h.uploader == nil {
		return nil, fmt.Errorf("no blob uploader configured")
	}

	var uris []string
	for _, member := range insp.OpenMembers("pdf") {
		rc, err := member.Open()
		if err != nil {
			return uris, err
		}
		uri, err := h.uploader.Upload(ctx, member.Name, rc)
		rc.Close()
		if err != nil {
			return uris, fmt.Errorf("upload %s: %w", member.Name, err)
		}
		uris = append(uris, uri)
	}

	bundle, names, err := ImageBundle(insp)
	if err != nil {
		return uris, err
	}
	if len(names) > 0 {
		bundleName := fmt.Sprintf("attempt-%d-images.zip", attempt.ID)
		uri, err := h.uploader.Upload(ctx, bundleName, bundle)
		if err != nil {
			return uris, fmt.Errorf("upload %s: %w", bundleName, err)
		}
		uris = append(uris, uri)
	}

	h.logger.Info("attempt published",
		logging.Int64(logging.FieldAttemptID, attempt.ID),
		logging.Int("uploads", len(uris)))
	return uris, nil
}

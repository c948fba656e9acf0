package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"

	"github.com/meigma/studycache"
)

// Media and artifact types for archived sets.
const (
	ArtifactType     = "application/vnd.studycache.set.v1"
	MediaTypeConfig  = "application/vnd.studycache.set.config.v1+json"
	MediaTypeContent = "application/vnd.studycache.set.content.v1"

	// AnnotationSetID records the set id on the manifest.
	AnnotationSetID = "dev.studycache.set.id"
)

const (
	maxTagLen  = 128
	tagHashLen = 12
)

// ErrEmptySetID is returned when a record without an id is uploaded.
var ErrEmptySetID = errors.New("archive: set id is empty")

// setConfig is the config blob of an archived set.
type setConfig struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Bytes       int64     `json:"bytes"`
	Items       int64     `json:"items"`
	Pinned      bool      `json:"pinned,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	LastStudied time.Time `json:"lastStudied,omitzero"`
}

// Publisher uploads one set.
type Publisher interface {
	Upload(ctx context.Context, rec studycache.SetRecord, data []byte) (ocispec.Descriptor, error)
}

// Uploader pushes sets as OCI artifacts to an oras.Target.
type Uploader struct {
	target oras.Target
	now    func() time.Time
	logger *slog.Logger
}

// Interface compliance.
var _ Publisher = (*Uploader)(nil)

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithUploaderLogger sets a custom logger for the uploader.
func WithUploaderLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// NewUploader returns an Uploader pushing to target.
func NewUploader(target oras.Target, opts ...UploaderOption) (*Uploader, error) {
	if target == nil {
		return nil, errors.New("archive: target is nil")
	}
	u := &Uploader{
		target: target,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload pushes rec and its content and tags the manifest with Tag(rec.ID).
// It returns the manifest descriptor.
func (u *Uploader) Upload(ctx context.Context, rec studycache.SetRecord, data []byte) (ocispec.Descriptor, error) {
	if rec.ID == "" {
		return ocispec.Descriptor{}, ErrEmptySetID
	}

	config, err := json.Marshal(setConfig{
		ID:          rec.ID,
		Title:       rec.Title,
		Bytes:       rec.Bytes,
		Items:       rec.Items,
		Pinned:      rec.Pinned,
		CreatedAt:   rec.CreatedAt,
		LastStudied: rec.LastStudied,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("marshal config: %w", err)
	}

	// Step 1: Push config blob
	configDesc, err := pushBlob(ctx, u.target, MediaTypeConfig, config)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push config: %w", err)
	}

	// Step 2: Push content layer
	layerDesc, err := pushBlob(ctx, u.target, MediaTypeContent, data)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push content: %w", err)
	}
	layerDesc.Annotations = map[string]string{ocispec.AnnotationTitle: rec.ID}

	// Step 3: Pack and push manifest
	annotations := map[string]string{
		AnnotationSetID:           rec.ID,
		ocispec.AnnotationCreated: u.now().UTC().Format(time.RFC3339),
	}
	if rec.Title != "" {
		annotations[ocispec.AnnotationTitle] = rec.Title
	}
	manifestDesc, err := oras.PackManifest(ctx, u.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers:              []ocispec.Descriptor{layerDesc},
		ConfigDescriptor:    &configDesc,
		ManifestAnnotations: annotations,
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push manifest: %w", err)
	}

	// Step 4: Tag
	tag := Tag(rec.ID)
	if err := u.target.Tag(ctx, manifestDesc, tag); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("tag %q: %w", tag, err)
	}

	u.logger.InfoContext(ctx, "set archived",
		slog.String("set_id", rec.ID),
		slog.String("tag", tag),
		slog.String("digest", manifestDesc.Digest.String()),
		slog.Int("content_bytes", len(data)))
	return manifestDesc, nil
}

// pushBlob pushes data unless the target already has it.
func pushBlob(ctx context.Context, target oras.Target, mediaType string, data []byte) (ocispec.Descriptor, error) {
	desc := content.NewDescriptorFromBytes(mediaType, data)
	if err := target.Push(ctx, desc, bytes.NewReader(data)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Tag maps a set id to a valid OCI tag unique to that id.
//
// The tag is a readable prefix followed by '-' and the first 12 hex
// digits of the id's sha256 digest. In the prefix, characters outside
// [A-Za-z0-9_.-] become '-' and a leading '.' or '-' is prefixed with
// "set". The whole tag fits in 128 characters.
func Tag(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	prefix := b.String()
	if prefix == "" || prefix[0] == '.' || prefix[0] == '-' {
		prefix = "set" + prefix
	}
	if n := maxTagLen - 1 - tagHashLen; len(prefix) > n {
		prefix = prefix[:n]
	}
	return prefix + "-" + digest.FromString(id).Encoded()[:tagHashLen]
}

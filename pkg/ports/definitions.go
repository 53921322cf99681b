package ports

import (
	"context"
	"io"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
)

// TagRepository defines storage operations for tag associations.
// Phones and tags passed in are already canonical.
type TagRepository interface {
	// ListByPhone returns the phone's associations ordered by tag.
	ListByPhone(ctx context.Context, phone string) ([]domain.TagAssociation, error)
	GetByID(ctx context.Context, id string) (*domain.TagAssociation, error)
	// Insert stores a unless (phone, tag) exists; on conflict a is overwritten with the stored row.
	Insert(ctx context.Context, a *domain.TagAssociation) (created bool, err error)
	// InsertBatch inserts every association in one transaction and reports how many were new.
	InsertBatch(ctx context.Context, as []domain.TagAssociation) (created int, err error)
	Delete(ctx context.Context, key domain.TagKey) (bool, error)
	// IncrementReport atomically bumps report_count and returns the updated row.
	IncrementReport(ctx context.Context, id string) (*domain.TagAssociation, error)
	// WalkGroups streams every phone with its tags, phone ascending, tags ascending.
	WalkGroups(ctx context.Context, fn func(domain.PhoneGroup) error) error
	Stats(ctx context.Context) (*domain.RegistryStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// TagService defines the registry operations exposed to HTTP, CLI and serverless callers.
type TagService interface {
	ListTags(ctx context.Context, rawPhone string) ([]domain.TagAssociation, error)
	AddTag(ctx context.Context, rawPhone, tag string) (*domain.TagAssociation, bool, error)
	RemoveTag(ctx context.Context, rawPhone, tag string) (bool, error)
	GetTag(ctx context.Context, id string) (*domain.TagAssociation, error)
	ReportTag(ctx context.Context, id string) (*domain.TagAssociation, error)
	Search(ctx context.Context, query string) ([]domain.PhoneGroup, error)
	Import(ctx context.Context, r io.Reader) (int, error)
	Export(ctx context.Context, w io.Writer) error
	Stats(ctx context.Context) (*domain.RegistryStats, error)
	Ping(ctx context.Context) error
	NormalizePhone(raw string) string
}

package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/phone"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/transfer"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/id"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
)

// MaxTagLength is the longest accepted tag, in runes.
const MaxTagLength = 100

type TagService struct {
	repo       ports.TagRepository
	normalizer *phone.Normalizer
	reports    *ReportCounter
	logger     *slog.Logger
	now        func() time.Time
}

func NewTagService(repo ports.TagRepository, normalizer *phone.Normalizer, logger *slog.Logger) *TagService {
	if normalizer == nil {
		normalizer = &phone.Normalizer{CountryCode: phone.DefaultCountryCode}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TagService{
		repo:       repo,
		normalizer: normalizer,
		reports:    NewReportCounter(repo, logger),
		logger:     logger,
		now:        time.Now,
	}
}

// NormalizePhone exposes the canonical phone key for raw input.
func (s *TagService) NormalizePhone(raw string) string {
	return s.normalizer.Normalize(raw)
}

func (s *TagService) canonicalPhone(raw string) (string, error) {
	p := s.normalizer.Normalize(raw)
	if p == "" {
		return "", domain.InvalidInput("phone is required")
	}
	return p, nil
}

// CleanTag trims tag and rejects values that cannot be stored.
func CleanTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", domain.InvalidInput("tag is required")
	}
	if transfer.ContainsSeparator(tag) {
		return "", domain.InvalidInput("tag must not contain ';', ',' or line breaks")
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", domain.InvalidInputf("tag must not exceed %d characters", MaxTagLength)
	}
	return tag, nil
}

func (s *TagService) ListTags(ctx context.Context, rawPhone string) ([]domain.TagAssociation, error) {
	p, err := s.canonicalPhone(rawPhone)
	if err != nil {
		return nil, err
	}
	tags, err := s.repo.ListByPhone(ctx, p)
	if err != nil {
		return nil, s.storageFailure("list tags", err)
	}
	return tags, nil
}

// AddTag stores (phone, tag) unless it exists. Tags must also pass CleanTag: no
// ';', ',' or line breaks, at most MaxTagLength runes.
func (s *TagService) AddTag(ctx context.Context, rawPhone, tag string) (*domain.TagAssociation, bool, error) {
	p, err := s.canonicalPhone(rawPhone)
	if err != nil {
		return nil, false, err
	}
	tag, err = CleanTag(tag)
	if err != nil {
		return nil, false, err
	}

	a, err := s.newAssociation(p, tag)
	if err != nil {
		return nil, false, err
	}

	created, err := s.repo.Insert(ctx, a)
	if err != nil {
		return nil, false, s.storageFailure("add tag", err)
	}
	if created {
		s.logger.Info("tag added", "phone", a.Phone, "tag", a.Tag, "id", a.ID)
	}
	return a, created, nil
}

func (s *TagService) newAssociation(p, tag string) (*domain.TagAssociation, error) {
	tagID, err := id.Generate(id.TagPrefix)
	if err != nil {
		return nil, domain.Storage(err)
	}
	return &domain.TagAssociation{
		ID:        tagID,
		Phone:     p,
		Tag:       tag,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *TagService) RemoveTag(ctx context.Context, rawPhone, tag string) (bool, error) {
	p, err := s.canonicalPhone(rawPhone)
	if err != nil {
		return false, err
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, domain.InvalidInput("tag is required")
	}

	deleted, err := s.repo.Delete(ctx, domain.TagKey{Phone: p, Tag: tag})
	if err != nil {
		return false, s.storageFailure("remove tag", err)
	}
	if deleted {
		s.logger.Info("tag removed", "phone", p, "tag", tag)
	}
	return deleted, nil
}

func (s *TagService) GetTag(ctx context.Context, tagID string) (*domain.TagAssociation, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return nil, domain.InvalidInput("id is required")
	}
	a, err := s.repo.GetByID(ctx, tagID)
	if err != nil {
		return nil, s.storageFailure("get tag", err)
	}
	return a, nil
}

// ReportTag flags an association as abusive.
func (s *TagService) ReportTag(ctx context.Context, tagID string) (*domain.TagAssociation, error) {
	return s.reports.Report(ctx, tagID)
}

// Search returns every phone whose number or tags contain query, case-insensitively.
// Groups are ordered by phone, tags within a group by tag.
func (s *TagService) Search(ctx context.Context, query string) ([]domain.PhoneGroup, error) {
	q := foldCase(strings.TrimSpace(query))
	if q == "" {
		return nil, domain.InvalidInput("query is required")
	}

	results := []domain.PhoneGroup{}
	err := s.repo.WalkGroups(ctx, func(g domain.PhoneGroup) error {
		if strings.Contains(haystack(g), q) {
			results = append(results, g)
		}
		return nil
	})
	if err != nil {
		return nil, s.storageFailure("search", err)
	}
	return results, nil
}

func haystack(g domain.PhoneGroup) string {
	return foldCase(g.Phone + " " + strings.Join(g.Tags, " "))
}

func foldCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Import loads the interchange format. The result counts every (phone, tag) pair
// attempted: pairs that already exist and tags rejected by CleanTag count too.
// Lines whose phone field is empty or has no digits are malformed and skipped whole.
// Stored pairs commit together or not at all.
func (s *TagService) Import(ctx context.Context, r io.Reader) (int, error) {
	var (
		batch     []domain.TagAssociation
		attempted int
	)
	err := transfer.Scan(r, func(rec transfer.Record) error {
		p := s.normalizer.Normalize(rec.Phone)
		if p == "" {
			s.logger.Debug("import: skipping line with invalid phone", "line", rec.Line)
			return nil
		}
		for _, raw := range rec.Tags {
			attempted++
			tag, err := CleanTag(raw)
			if err != nil {
				s.logger.Debug("import: skipping tag", "line", rec.Line, "tag", raw, "error", err)
				continue
			}
			a, err := s.newAssociation(p, tag)
			if err != nil {
				return err
			}
			batch = append(batch, *a)
		}
		return nil
	})
	if err != nil {
		return 0, domain.AsStorage(err)
	}
	if len(batch) == 0 {
		return attempted, nil
	}

	created, err := s.repo.InsertBatch(ctx, batch)
	if err != nil {
		return 0, s.storageFailure("import", err)
	}
	s.logger.Info("import complete", "pairs", attempted, "stored", len(batch), "created", created)
	return attempted, nil
}

// Export streams the registry in the interchange format, one line per phone.
func (s *TagService) Export(ctx context.Context, w io.Writer) error {
	tw := transfer.NewWriter(w)
	if err := s.repo.WalkGroups(ctx, tw.Write); err != nil {
		return s.storageFailure("export", err)
	}
	if err := tw.Flush(); err != nil {
		return s.storageFailure("export", err)
	}
	return nil
}

func (s *TagService) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, s.storageFailure("stats", err)
	}
	return st, nil
}

// Ping checks that the store is reachable.
func (s *TagService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return s.storageFailure("ping", err)
	}
	return nil
}

func (s *TagService) storageFailure(op string, err error) error {
	err = domain.AsStorage(err)
	if errors.Is(err, domain.ErrStorage) {
		s.logger.Error(op+" failed", "error", err)
	}
	return err
}

var _ ports.TagService = (*TagService)(nil)

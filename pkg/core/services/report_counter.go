package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
)

// ReportCounter increments abuse reports on tag associations.
// Counts only ever go up; acting on them is left to moderation tooling.
type ReportCounter struct {
	repo   ports.TagRepository
	logger *slog.Logger
}

func NewReportCounter(repo ports.TagRepository, logger *slog.Logger) *ReportCounter {
	return &ReportCounter{repo: repo, logger: logger}
}

// Report adds one report to the association with the given id and returns it.
// Returns a NotFound error when no such association exists.
func (c *ReportCounter) Report(ctx context.Context, tagID string) (*domain.TagAssociation, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return nil, domain.InvalidInput("id is required")
	}

	a, err := c.repo.IncrementReport(ctx, tagID)
	if err != nil {
		err = domain.AsStorage(err)
		if errors.Is(err, domain.ErrStorage) {
			c.logger.Error("report failed", "id", tagID, "error", err)
		}
		return nil, err
	}

	c.logger.Info("tag reported", "id", a.ID, "phone", a.Phone, "tag", a.Tag, "report_count", a.ReportCount)
	return a, nil
}

package lifecycle

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/models"
	"github.com/maneesh/docsync/internal/session"
)

// Report classifies divergence between the owner's records and the backend.
// Unindexed records were never acknowledged. Dangling records point at an
// entry the backend no longer has. Orphaned entries have no record.
type Report struct {
	OwnerID   string                   `json:"ownerId"`
	Unindexed []*models.DocumentRecord `json:"unindexed"`
	Dangling  []*models.DocumentRecord `json:"dangling"`
	Orphaned  []models.IndexEntry      `json:"orphaned"`
}

// Consistent reports whether no divergence was found
func (r *Report) Consistent() bool {
	return len(r.Unindexed) == 0 && len(r.Dangling) == 0 && len(r.Orphaned) == 0
}

// Reconcile compares the owner's records with live index entries. It never
// modifies either side. The backend is always consulted directly.
func (c *Coordinator) Reconcile(ctx context.Context, id session.Identity) (*Report, error) {
	const op = "lifecycle.reconcile"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "lifecycle.reconcile",
		trace.WithAttributes(attribute.String("owner_id", id.Subject)),
	)
	defer span.End()

	store, err := c.store(ctx, op)
	if err != nil {
		return nil, err
	}

	records, err := store.ListByOwner(ctx, id.Subject)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}

	unindexed, err := store.ListUnindexed(ctx, id.Subject)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	if unindexed == nil {
		unindexed = []*models.DocumentRecord{}
	}

	entries, err := c.index.ListEntries(ctx, id.Token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	live := make(map[string]bool, len(entries))
	for _, e := range entries {
		live[e.IndexRef] = true
	}

	report := &Report{
		OwnerID:   id.Subject,
		Unindexed: unindexed,
		Dangling:  []*models.DocumentRecord{},
		Orphaned:  []models.IndexEntry{},
	}
	referenced := make(map[string]bool, len(records))
	for _, rec := range records {
		if !rec.Indexed() {
			continue
		}
		referenced[rec.IndexRef] = true
		if !live[rec.IndexRef] {
			report.Dangling = append(report.Dangling, rec)
		}
	}
	for _, e := range entries {
		if !referenced[e.IndexRef] {
			report.Orphaned = append(report.Orphaned, e)
		}
	}

	c.logger.Info("reconciliation complete",
		slog.String("owner_id", id.Subject),
		slog.Int("unindexed", len(report.Unindexed)),
		slog.Int("dangling", len(report.Dangling)),
		slog.Int("orphaned", len(report.Orphaned)),
	)
	span.SetAttributes(attribute.Bool("consistent", report.Consistent()))
	return report, nil
}

package lifecycle

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/indexclient"
	"github.com/maneesh/docsync/internal/session"
)

// Query forwards a question to the backend. With a documentID the question
// is scoped to that record's index entry; an unindexed record is rejected
// without contacting the backend.
func (c *Coordinator) Query(ctx context.Context, id session.Identity, question, documentID string) (*indexclient.Answer, error) {
	const op = "lifecycle.query"
	if err := requireIdentity(id, op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, apperr.New(apperr.Validation, op, "Query is required")
	}

	ctx, span := tracer.Start(ctx, "lifecycle.query",
		trace.WithAttributes(
			attribute.String("owner_id", id.Subject),
			attribute.String("document_id", documentID),
		),
	)
	defer span.End()

	var indexRef string
	if documentID != "" {
		store, err := c.store(ctx, op)
		if err != nil {
			return nil, err
		}
		record, err := store.FindByID(ctx, documentID, id.Subject)
		if err != nil {
			return nil, err
		}
		if !record.Indexed() {
			return nil, apperr.New(apperr.NotIndexed, op, "Document is not indexed yet")
		}
		indexRef = record.IndexRef
	}

	answer, err := c.index.Query(ctx, id.Token, question, indexRef)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return answer, nil
}

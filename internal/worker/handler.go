package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tariffdesk/jobengine/common"
	"github.com/tariffdesk/jobengine/internal/dto"
	"github.com/tariffdesk/jobengine/internal/job"
	"github.com/tariffdesk/jobengine/internal/log"
	"github.com/tariffdesk/jobengine/internal/registry"
)

// Built-in handlers for the four job types. They stand in for the real
// classification/duty services: same per-item latency shape and error
// surface, no remote calls. RegisterBuiltinHandlers wires them into a
// registry for the server binary and the end-to-end tests.
func RegisterBuiltinHandlers(r *registry.Registry) {
	registry.RegisterTyped(r, "classification", ClassifyItemHandler)
	registry.RegisterTyped(r, "fee_calculation", CalculateFeesHandler)
	registry.RegisterTyped(r, "import", ImportItemHandler)
	registry.RegisterTyped(r, "export", ExportItemHandler)
}

// ClassifyItemHandler simulates assigning an HS code to one product.
func ClassifyItemHandler(ctx context.Context, item registry.Item, params dto.ClassificationParams) error {
	select {
	case <-time.After(120 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Info("classified product",
		"job_id", item.JobID,
		"product_id", item.ItemID,
		"hs_revision", params.HSRevision,
		"country", params.Country,
	)

	return nil
}

// CalculateFeesHandler simulates computing landed cost for one product.
func CalculateFeesHandler(ctx context.Context, item registry.Item, params dto.FeeCalculationParams) error {
	select {
	case <-time.After(80 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Info("calculated duties",
		"job_id", item.JobID,
		"product_id", item.ItemID,
		"country", params.Country,
		"currency", params.CurrencyCode,
	)

	return nil
}

// ImportItemHandler simulates ingesting one source row. A source that is
// gone entirely is fatal for the whole job; a single malformed row is not.
func ImportItemHandler(ctx context.Context, item registry.Item, params dto.ImportParams) error {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	if strings.HasPrefix(params.SourceURI, "missing://") {
		return job.Fatalf(common.CodeFatal, "import source %s is unreachable", params.SourceURI)
	}

	log.Info("imported row",
		"job_id", item.JobID,
		"row_id", item.ItemID,
		"source", params.SourceURI,
	)

	return nil
}

// ExportItemHandler simulates serialising one product row.
func ExportItemHandler(ctx context.Context, item registry.Item, params dto.ExportParams) error {
	select {
	case <-time.After(30 * time.Millisecond):
	case <-ctx.Done():
		return fmt.Errorf("export cancelled: %w", ctx.Err())
	}

	log.Info("exported row",
		"job_id", item.JobID,
		"row_id", item.ItemID,
		"format", params.Format,
	)

	return nil
}

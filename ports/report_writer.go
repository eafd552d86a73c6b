package ports

import (
	"context"

	"cognosis/domain/statistics"
)

// ReportWriter exports a batch of settled trials for offline analysis.
type ReportWriter interface {
	WriteBatchReport(ctx context.Context, path string, trials []Trial, summary statistics.BatchSummary) error
}

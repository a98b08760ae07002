package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/telemetry"
)

// DomainFailure names the domain a batch failure belongs to.
type DomainFailure struct {
	Domain string
	Err    error
}

// Report aggregates a renewAll run into three buckets.
type Report struct {
	Renewed []*RenewOutcome
	Skipped []*RenewOutcome
	Failed  []DomainFailure
}

// HasFailures reports whether any domain failed
func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Err flattens the failed bucket into one error, or nil when every domain
// renewed or was skipped.
func (r *Report) Err() error {
	merr := &errdefs.MultiError{}
	for _, f := range r.Failed {
		merr.Add(errdefs.New("renew "+f.Domain, f.Err))
	}
	return merr.ErrorOrNil()
}

// RenewAll renews every registered domain sequentially. One domain's
// failure never interrupts the others; it lands in the report's failed
// bucket with its reason. Domains run strictly in order because concurrent
// orders against one ACME account invite rate limiting, and the registry
// file has no cross-process locking.
func (o *Orchestrator) RenewAll(ctx context.Context, opts Options) *Report {
	domains := o.Registry.Domains()

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.RenewAll",
		trace.WithAttributes(attribute.Int("domains", len(domains))))
	defer span.End()

	report := &Report{}

	for _, domain := range domains {
		outcome, err := o.Renew(ctx, domain, opts)
		if err != nil {
			o.Log.Error("renewal failed",
				zap.String("domain", domain),
				zap.Error(err))
			report.Failed = append(report.Failed, DomainFailure{Domain: domain, Err: err})
			continue
		}

		if outcome.Renewed {
			report.Renewed = append(report.Renewed, outcome)
		} else {
			report.Skipped = append(report.Skipped, outcome)
		}
	}

	return report
}

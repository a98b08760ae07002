package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/certstore"
)

// RenewOutcome distinguishes "renewed" from "not due yet". Not-due is a
// normal outcome, not a failure.
type RenewOutcome struct {
	Domain   string
	Renewed  bool
	DaysLeft int
	Reason   string
	Result   *IssueResult
}

// Renew reissues the domain's certificate when it is inside the expiry
// threshold, forced, or missing entirely. Outside the threshold it returns
// a not-due outcome without touching the CA.
func (o *Orchestrator) Renew(ctx context.Context, domain string, opts Options) (*RenewOutcome, error) {
	threshold := opts.ThresholdDays
	if threshold == 0 {
		threshold = o.ThresholdDays
	}
	if threshold == 0 {
		threshold = DefaultThresholdDays
	}

	info, err := certstore.Inspect(o.CertsRoot, domain)
	if err != nil {
		if !isMissingCert(err) {
			return nil, fmt.Errorf("failed to inspect certificate for %s: %w", domain, err)
		}

		o.Log.Info("no existing certificate, issuing",
			zap.String("domain", domain))
		result, err := o.Issue(ctx, domain, opts)
		if err != nil {
			return nil, err
		}
		return &RenewOutcome{Domain: domain, Renewed: true, Reason: "no previous certificate", Result: result}, nil
	}

	daysLeft := info.DaysLeft(o.clock())

	if !opts.Force && daysLeft > threshold {
		o.Log.Info("certificate not due for renewal",
			zap.String("domain", domain),
			zap.Int("daysLeft", daysLeft),
			zap.Int("threshold", threshold))
		return &RenewOutcome{Domain: domain, DaysLeft: daysLeft, Reason: "not due"}, nil
	}

	reason := "expiring"
	if opts.Force {
		reason = "forced"
	}

	result, err := o.Issue(ctx, domain, opts)
	if err != nil {
		return nil, err
	}
	return &RenewOutcome{Domain: domain, Renewed: true, DaysLeft: daysLeft, Reason: reason, Result: result}, nil
}

package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// MinLease is the shortest lease a worker may hold.
const MinLease = time.Second

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the requested duration was raised to MinLease.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy normalises claim lease durations and derives heartbeat cadence.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	if defaultLease < MinLease {
		defaultLease = MinLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Duration  time.Duration
	Source    LeaseSource
	Requested time.Duration
}

// Clamped reports whether the requested value was raised to the minimum lease.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Heartbeat returns how often a lease holder should renew. Renewing at a third
// of the lease leaves two missed beats before the claim is considered lost.
func (d LeaseDecision) Heartbeat() time.Duration {
	hb := d.Duration / 3
	if hb <= 0 {
		return MinLease / 3
	}
	return hb
}

// Deadline returns the instant the lease expires if renewed at now.
func (d LeaseDecision) Deadline(now time.Time) time.Time {
	return now.Add(d.Duration)
}

// Resolve normalises the requested lease duration, truncated to whole seconds.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	decision := LeaseDecision{Requested: request}
	switch {
	case request == 0:
		decision.Duration = p.Default()
		decision.Source = LeaseSourceDefault
	case request < MinLease:
		decision.Duration = MinLease
		decision.Source = LeaseSourceClamped
	default:
		decision.Duration = request.Truncate(time.Second)
		decision.Source = LeaseSourceExplicit
	}
	return decision
}

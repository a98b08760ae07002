package challenge

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Public resolvers queried for the advisory propagation check. Answers can
// disagree while a record propagates; one hit is enough.
var defaultResolvers = []string{
	"1.1.1.1:53",
	"8.8.8.8:53",
	"9.9.9.9:53",
}

// PropagationChecker looks a TXT record up on public resolvers. It is purely
// advisory: the CA runs its own lookups, so a miss here only produces a
// warning.
type PropagationChecker struct {
	Resolvers []string
	Timeout   time.Duration
}

// NewPropagationChecker returns a checker with the default resolver set
func NewPropagationChecker() *PropagationChecker {
	return &PropagationChecker{
		Resolvers: defaultResolvers,
		Timeout:   5 * time.Second,
	}
}

// Found reports whether any resolver returns the expected TXT value
func (p *PropagationChecker) Found(ctx context.Context, fqdn, value string) bool {
	for _, addr := range p.Resolvers {
		if p.query(ctx, addr, fqdn, value) {
			return true
		}
	}
	return false
}

func (p *PropagationChecker) query(ctx context.Context, resolver, fqdn, value string) bool {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: p.Timeout}
			return d.DialContext(ctx, network, resolver)
		},
	}

	qctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	records, err := r.LookupTXT(qctx, fmt.Sprintf("%s.", fqdn))
	if err != nil {
		return false
	}
	for _, rec := range records {
		if rec == value {
			return true
		}
	}
	return false
}

// Package rollup folds validated events into compact per-slug aggregates.
package rollup

import (
	"github.com/sitepulse/analytics-api/internal/domain"
)

// Rollup is the aggregate over all events sharing one slug within a single
// aggregation pass.
type Rollup struct {
	Slug           string                `json:"slug"`
	TotalEvents    int                   `json:"total_events"`
	UniqueSessions int                   `json:"unique_sessions"`
	DomainAnalysis domain.DomainAnalysis `json:"domain_analysis"`
}

type group struct {
	total    int
	sessions map[string]struct{}
	domain   string
	mixed    bool
}

// Aggregate partitions a batch by slug and computes per-group statistics.
// Pure and total over validated input: no shared state, no side effects,
// and an empty batch yields an empty result. Output order mirrors the
// first-occurrence order of each slug in the input.
//
// The group domain follows a conservative tie-break: if every event whose
// derivation is not "unknown" agrees on one domain, the group carries it;
// any disagreement, or a group of fully anonymous events, degrades to
// "unknown" rather than asserting a false single-domain attribution.
func Aggregate(events []domain.Event) []Rollup {
	groups := make(map[string]*group, len(events))
	order := make([]string, 0, len(events))

	for _, ev := range events {
		g, ok := groups[ev.Slug]
		if !ok {
			g = &group{sessions: make(map[string]struct{})}
			groups[ev.Slug] = g
			order = append(order, ev.Slug)
		}
		g.total++
		g.sessions[ev.SessionID] = struct{}{}

		da := domain.DeriveDomain(ev.Identity)
		if g.mixed || da.Domain == domain.UnknownDomain {
			continue
		}
		switch {
		case g.domain == "":
			g.domain = da.Domain
		case g.domain != da.Domain:
			g.mixed = true
		}
	}

	out := make([]Rollup, 0, len(order))
	for _, slug := range order {
		g := groups[slug]
		d := g.domain
		if g.mixed || d == "" {
			d = domain.UnknownDomain
		}
		out = append(out, Rollup{
			Slug:           slug,
			TotalEvents:    g.total,
			UniqueSessions: len(g.sessions),
			DomainAnalysis: domain.DomainAnalysis{Domain: d},
		})
	}
	return out
}

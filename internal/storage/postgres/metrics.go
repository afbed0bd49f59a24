package postgres

import (
	"context"
	"fmt"
)

type MetricsTotals struct {
	Count          int64 `json:"count"`
	UniqueSessions int64 `json:"unique_sessions"`
}

type SlugMetrics struct {
	Slug           string `json:"slug"`
	Count          int64  `json:"count"`
	UniqueSessions int64  `json:"unique_sessions"`
	Domain         string `json:"domain"`
}

// slug is optional (nil or empty string means "no filter")
func (db *DB) QueryTotals(ctx context.Context, slug *string, from, to int64) (MetricsTotals, error) {
	var res MetricsTotals

	cond := "WHERE occurred_at >= to_timestamp($1) AND occurred_at <= to_timestamp($2)"
	args := []any{from, to}
	if slug != nil && *slug != "" {
		cond += " AND slug=$3"
		args = append(args, *slug)
	}

	sql := "SELECT COUNT(*)::bigint, COUNT(DISTINCT session_id)::bigint FROM events " + cond
	row := db.Pool.QueryRow(ctx, sql, args...)
	if err := row.Scan(&res.Count, &res.UniqueSessions); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	return res, nil
}

// QueryBySlug reports per-slug counts and the same conservative domain
// attribution the aggregator uses: exactly one resolvable domain wins,
// anything mixed or fully anonymous reads "unknown".
func (db *DB) QueryBySlug(ctx context.Context, slug *string, from, to int64) ([]SlugMetrics, error) {
	cond := "WHERE occurred_at >= to_timestamp($1) AND occurred_at <= to_timestamp($2)"
	args := []any{from, to}
	if slug != nil && *slug != "" {
		cond += " AND slug=$3"
		args = append(args, *slug)
	}

	sql := fmt.Sprintf(`
SELECT
  slug,
  COUNT(*)::bigint AS cnt,
  COUNT(DISTINCT session_id)::bigint AS uniq,
  CASE
    WHEN COUNT(DISTINCT identity_domain) FILTER (WHERE identity_domain <> 'unknown') = 1
    THEN MAX(identity_domain) FILTER (WHERE identity_domain <> 'unknown')
    ELSE 'unknown'
  END AS domain
FROM events
%s
GROUP BY slug
ORDER BY slug ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlugMetrics
	for rows.Next() {
		var m SlugMetrics
		if err := rows.Scan(&m.Slug, &m.Count, &m.UniqueSessions, &m.Domain); err != nil {
			return nil, fmt.Errorf("scan slug metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

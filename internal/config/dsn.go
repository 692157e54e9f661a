package config

import "strings"

// NormalizePostgresDSN converts driver-qualified connection strings into a
// plain PostgreSQL DSN that lib/pq understands. The Radar service hands out
// "postgresql+psycopg2://" URLs and some deployments store "asyncpg://";
// both are rewritten to "postgresql://". Everything else passes through.
func NormalizePostgresDSN(url string) string {
	if strings.HasPrefix(url, "postgresql+") {
		if _, rest, ok := strings.Cut(url, "://"); ok {
			return "postgresql://" + rest
		}
	}
	if rest, ok := strings.CutPrefix(url, "asyncpg://"); ok {
		return "postgresql://" + rest
	}
	return url
}

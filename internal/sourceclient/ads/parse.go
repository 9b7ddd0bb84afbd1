package ads

import "strconv"

// parseIntSafe parses a numeric string field from the ads API, treating a
// missing/empty value as zero rather than a schema error -- these
// counters are frequently absent for ads with no activity on a given day.
func parseIntSafe(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

package gittree

import "time"

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

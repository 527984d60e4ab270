// krabbel/utils/utils.go
package utils

import (
	"fmt"
	"time"
)

var dutchMonths = [...]string{"jan", "feb", "mrt", "apr", "mei", "jun", "jul", "aug", "sep", "okt", "nov", "dec"}

// ShortDate formats a time the way posts show it, e.g. "2 okt 14:05".
func ShortDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	return fmt.Sprintf("%d %s %02d:%02d", t.Day(), dutchMonths[t.Month()-1], t.Hour(), t.Minute())
}

// BackupFileName builds a sortable name for a database snapshot.
func BackupFileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s.db", prefix, t.UTC().Format("20060102-150405"))
}

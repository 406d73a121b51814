// Package staleness decides when a record's cached metrics are old enough
// to refresh. The decision looks only at last_checked: a post dated in the
// future by clock skew is still refreshed on the same schedule as any
// other.
package staleness

import (
	"time"

	"github.com/spacesedan/karmatrack/internal/models"
)

const DefaultThreshold = 48 * time.Hour

// IsDue reports whether rec needs a metrics refresh at now. Records never
// fetched are always due; unreachable records never are. A record exactly
// at the threshold counts as due.
func IsDue(rec models.PostRecord, now time.Time, threshold time.Duration) bool {
	if rec.Status == models.StatusUnreachable {
		return false
	}
	if rec.LastChecked == nil {
		return true
	}
	return now.Sub(*rec.LastChecked) >= threshold
}

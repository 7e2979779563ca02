package transfer

import (
	"sort"
	"strconv"

	"github.com/ehr/tracker/internal/platform/document"
)

// sortedEpisodeKeys orders episode keys numerically where they are ids, so
// episodes are recreated in their original order.
func sortedEpisodeKeys(m document.Mapping) []string {
	keys := m.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

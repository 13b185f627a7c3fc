// Package dedupe drops records whose identity was already seen.
package dedupe

import "github.com/sells-group/leadflow/internal/model"

// KeySet reports whether an identity key is already taken. The run context
// implements it over persisted plus claimed keys.
type KeySet interface {
	Seen(key string) bool
}

// Filter keeps the first record for each identity key not already in seen.
// Records without identity fields get a generated lead_id first. Kept
// records preserve their relative order.
func Filter(batch []model.Record, seen KeySet) (kept []model.Record, duplicates int) {
	local := make(map[string]struct{}, len(batch))
	kept = make([]model.Record, 0, len(batch))
	for _, r := range batch {
		key := model.EnsureIdentity(r)
		if _, dup := local[key]; dup || (seen != nil && seen.Seen(key)) {
			duplicates++
			continue
		}
		local[key] = struct{}{}
		kept = append(kept, r)
	}
	return kept, duplicates
}

// Keys returns the identity keys of batch in order.
func Keys(batch []model.Record) []string {
	out := make([]string, 0, len(batch))
	for _, r := range batch {
		out = append(out, model.EnsureIdentity(r))
	}
	return out
}

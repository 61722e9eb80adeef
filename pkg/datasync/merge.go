package datasync

import "github.com/google/uuid"

// Merge folds a cloud snapshot into the local aggregate additively. A cloud
// record overwrites the local record with the same identity; local records
// the cloud does not know about survive untouched. An empty or partial cloud
// snapshot therefore never deletes anything.
func Merge(local, cloud Aggregate) Aggregate {
	return Aggregate{
		Habits:   mergeByID(local.Habits, cloud.Habits, func(h Habit) uuid.UUID { return h.ID }),
		Trackers: mergeByID(local.Trackers, cloud.Trackers, func(t Tracker) uuid.UUID { return t.ID }),
		Entries:  mergeByID(local.Entries, cloud.Entries, func(e Entry) uuid.UUID { return e.ID }),
	}
}

// mergeByID keeps local ordering for overwritten records and appends
// cloud-only records after them.
func mergeByID[T any](local, cloud []T, id func(T) uuid.UUID) []T {
	if len(cloud) == 0 {
		return local
	}

	incoming := make(map[uuid.UUID]T, len(cloud))
	for _, rec := range cloud {
		incoming[id(rec)] = rec
	}

	out := make([]T, 0, len(local)+len(cloud))
	seen := make(map[uuid.UUID]struct{}, len(local))
	for _, rec := range local {
		key := id(rec)
		seen[key] = struct{}{}
		if repl, ok := incoming[key]; ok {
			out = append(out, repl)
			continue
		}
		out = append(out, rec)
	}
	for _, rec := range cloud {
		if _, ok := seen[id(rec)]; ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

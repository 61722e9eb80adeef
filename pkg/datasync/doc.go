// Package datasync owns the hand-off of habit data between the device's
// local store and the cloud store, driven by the plan decision.
//
// Ownership is conditional. For an entitled user the cloud copy is the
// exclusive source of truth: on transition the cloud snapshot wholesale
// replaces the local cache, except when the cloud is still empty, in which
// case the local content is migrated up exactly once. For everyone else the
// device copy is primary and a cloud snapshot is merged in additively,
// overwriting records by identity but never deleting anything that exists
// only locally.
//
// Mutations persist locally before the call returns. Cloud uploads are
// immediate rather than debounced, and the latest full snapshot always
// wins: a mutation landing during an in-flight upload triggers one more
// upload with the newest state once the first completes.
package datasync

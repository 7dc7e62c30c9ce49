// Package reconcile keeps gallery identities fresh.
//
// Galleries handed to an Engine are checked after a fixed delay, and only
// once no scan is in flight. A check recomputes the cheap mtime hash first;
// when it is unchanged nothing else happens. When it changed, the identity
// is recomputed from content and both hashes are saved. An identity change
// also invalidates the thumbnail so it is regenerated lazily.
//
// Checked galleries are handed to the next stage (metadata matching) with
// the callback set by SetOnChecked.
package reconcile

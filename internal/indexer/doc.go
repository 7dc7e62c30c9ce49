// Package indexer builds the in-memory gallery collection.
//
// Two entry points feed the same construction path:
//   - Reload reads every stored row with its facets, checks presence on
//     disk, marks vanished rows dead, revives dead rows whose content came
//     back and constructs the rest.
//   - Scan walks library roots (or given paths) and turns each directory
//     that directly holds images into a folder gallery and each zip/cbz or
//     rar/cbr file into an archive gallery.
//
// Locations already in the library are skipped before construction, so a
// rescan is idempotent. Construction runs on the "construct" worker pool;
// one failing candidate never aborts the batch. Dead flags are written back
// in a single session and unreadable archives are reported in one notice.
// Newly added galleries are handed to the callback set with SetOnBuilt,
// which is how reconciliation is fed.
//
// Submit queues requests on a serialized intake, so runs never overlap.
// Hidden files and directories (prefixed with '.') are never indexed.
package indexer

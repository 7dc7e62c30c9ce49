/*
Package filesystem provides the filesystem plumbing used by the library:
NFS-tolerant existence checks, path helpers, removal of gallery content and
a recursive change watcher.

# Retry Behavior

Libraries often live on network mounts. StatWithRetry and ReadDirWithRetry
retry ESTALE (stale file handle) errors with exponential backoff:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults are 3 retries starting at 50ms and capped at 500ms. Other errors
fail immediately. Exists wraps StatWithRetry for reload-time presence checks.

# Deleting Content

Remover deletes gallery content either permanently or by moving it into a
trash directory. Moves across devices fall back to copy and remove:

	r := filesystem.NewRemover(filesystem.DeleteTrash, filepath.Join(dataDir, "trash"))
	err := r.Remove(targets...)

# Watching

Watcher adds every non-hidden directory below the roots to fsnotify and
hands coalesced changes to a callback after a debounce interval.
Directories created later are added as they appear.
*/
package filesystem

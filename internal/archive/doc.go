// Package archive gives folder galleries and archive galleries one read-only
// view: list content files, open or hash one of them, report change stamps and
// size, and extract to a directory on demand.
//
// Zip and cbz files are read with github.com/klauspost/compress/zip, rar and
// cbr files with github.com/nwaples/rardecode/v2. Any failure to open or walk
// an archive is reported as ErrUnreadable.
package archive

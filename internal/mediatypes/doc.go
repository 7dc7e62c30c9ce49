// Package mediatypes provides shared type definitions for gallery content
// files across the gallery viewer.
//
// This package is a dependency-free foundation that other packages import
// without creating import cycles.
//
// # File Types
//
//	mediatypes.FileTypeImage   // gallery pages (jpg, png, gif, webp, bmp)
//	mediatypes.FileTypeArchive // zip/cbz and rar/cbr galleries
//	mediatypes.FileTypeOther   // everything else
//
// # Extension Detection
//
//	if mediatypes.IsImage(name) {
//	    // counts as gallery content
//	}
//	format, ok := mediatypes.GetArchiveFormat(mediatypes.Ext(path))
//
// # Sorting
//
// SortField and SortOrder name the orderings offered by the gallery list.
package mediatypes

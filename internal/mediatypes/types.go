package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the role a file plays in a library.
type FileType string

const (
	// FileTypeImage represents a gallery page.
	FileTypeImage FileType = "image"
	// FileTypeArchive represents a compressed gallery.
	FileTypeArchive FileType = "archive"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ArchiveFormat identifies the container format of an archive gallery.
type ArchiveFormat string

const (
	// ArchiveZip covers .zip and .cbz files.
	ArchiveZip ArchiveFormat = "zip"
	// ArchiveRar covers .rar and .cbr files.
	ArchiveRar ArchiveFormat = "rar"
)

// SortField specifies which field to sort galleries by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByName sorts by resolved title.
	SortByName SortField = "name"
	// SortByReadCount sorts by number of times opened.
	SortByReadCount SortField = "read_count"
	// SortByLastRead sorts by last-read timestamp.
	SortByLastRead SortField = "last_read"
	// SortByRating sorts by resolved rating.
	SortByRating SortField = "rating"
	// SortByTimeAdded sorts by creation timestamp.
	SortByTimeAdded SortField = "time_added"
	// SortByPath sorts by location.
	SortByPath SortField = "path"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// ImageExtensions maps file extensions to whether they are gallery pages.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// ArchiveExtensions maps archive file extensions to their container format.
var ArchiveExtensions = map[string]ArchiveFormat{
	".zip": ArchiveZip,
	".cbz": ArchiveZip,
	".rar": ArchiveRar,
	".cbr": ArchiveRar,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".zip":  "application/zip",
	".cbz":  "application/vnd.comicbook+zip",
	".rar":  "application/vnd.rar",
	".cbr":  "application/vnd.comicbook-rar",
}

// Ext returns the lowercase extension of name including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if _, ok := ArchiveExtensions[ext]; ok {
		return FileTypeArchive
	}
	return FileTypeOther
}

// GetArchiveFormat returns the archive format for an extension.
func GetArchiveFormat(ext string) (ArchiveFormat, bool) {
	format, ok := ArchiveExtensions[ext]
	return format, ok
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImage reports whether name has a gallery page extension.
// Matching is case-insensitive.
func IsImage(name string) bool {
	return ImageExtensions[Ext(name)]
}

// IsArchive reports whether name has an archive extension.
func IsArchive(name string) bool {
	_, ok := ArchiveExtensions[Ext(name)]
	return ok
}

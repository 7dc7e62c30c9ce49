/*
Package thumbnail keeps one JPEG cover per gallery under the data directory.

Thumbnails are keyed by the content hash of the gallery's representative
file, so galleries with the same cover share a file and a changed cover
gets a new one:

	<data>/thumbs/<image_hash>.jpg

A thumbnail is valid when its file exists and the representative file still
hashes to the stored image hash. EnsureAll validates a batch on the
"thumbnail" worker pool, regenerates what is stale, saves the new hashes and
then prunes files no live gallery references.

Landscape sources are turned upright before being cropped to the configured
size.
*/
package thumbnail

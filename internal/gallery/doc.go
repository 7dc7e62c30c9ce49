// Package gallery implements the gallery record: one folder of images or
// one zip/rar archive, identified by a fingerprint of its content.
//
// Variant behavior lives behind archive.Source; Kind only selects the
// source and is persisted as the row type. Build turns a Candidate into a
// Gallery, resurrecting a dead store row with the same identity instead of
// inserting a duplicate. Galleries keep a weak mirror of their store row
// that is written back only by explicit calls such as Save.
package gallery

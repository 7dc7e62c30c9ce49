// Package library holds the in-memory gallery collection and the event
// stream that subsystems publish completion events and notices on.
//
// A Library is created once per process and passed explicitly to the
// indexer, reconciler, duplicate resolver, matcher and HTTP handlers.
// Galleries are addressed by store id; nothing holds a pointer back to the
// library.
package library

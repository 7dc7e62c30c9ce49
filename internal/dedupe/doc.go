// Package dedupe removes galleries that share an identity.
//
// Galleries are grouped by a freshly computed identity. In every group with
// more than one member, elimination passes run in order:
//
//  1. keep members with catalog metadata
//  2. keep members with custom metadata
//  3. keep archive galleries over folder galleries
//
// A pass that no member satisfies is skipped. If several members remain,
// the one with the lowest id survives. Everything else goes through the
// library's deletion path.
package dedupe

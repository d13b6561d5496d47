// Package discovery loads file descriptors produced by an external crawler
// into the record store.
//
// Manifests are JSON arrays or JSON Lines. Each newly seen remote_id is
// fingerprinted and checked against earlier records before it is inserted;
// the duplicate policy decides whether a match is stored (linked to its
// original) or dropped. Re-running discovery over the same manifest is a
// no-op.
package discovery

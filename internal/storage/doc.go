// Package storage persists the bot's in-memory documents.
//
// A Store holds a fixed set of named documents (processed ids, board
// snapshot, joke catalog). Mutations mark a document dirty; a periodic
// Flush writes every dirty document to the configured Backend and clears
// its flag. Backends:
//   - "file": one JSON file per document, replaced atomically
//   - "sqlite": one row per document
package storage

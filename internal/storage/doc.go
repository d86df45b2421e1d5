// Package storage is quietq's local SQLite store.
//
// It holds the single settings row, the prompt catalogue, journal entries and
// the project/trait taxonomies. Everything lives in one database file so the
// whole journal can be backed up by copying it.
package storage

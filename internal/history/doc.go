// Package history persists a record of finished conversions in SQLite.
//
// The convert command writes one Entry per input once its run reaches a
// terminal state (done, error or aborted). The history command lists and
// prunes those entries. The database lives at <log_dir>/history.db and is
// diagnostic data rather than a source of truth: archives on disk never
// depend on it, and a missing or unreadable database only disables recording.
//
// Schema changes bump schemaVersion in schema.go; users clear the database
// to adopt the new schema.
package history

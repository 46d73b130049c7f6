// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [CredentialRepository] : OAuth tokens keyed by (platform, subject), written as upserts
//   - [JobRepository] : Sync jobs and their destinations, with soft deletes and sequence numbers
//   - [SyncLogRepository] : Append-only audit log with recent-entry listing and run statistics
//   - [ResolvedTrackRepository] : Cache of destination tracks already found by search
//
// Sequence numbers provide stable, human-readable job references (e.g., job #3) independent of UUIDs.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
//
// All timestamps are written in UTC.
package repositories

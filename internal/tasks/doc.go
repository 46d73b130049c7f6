// Package tasks reconciles sync jobs and schedules them.
//
// # Reconciliation
//
// [Engine.Run] performs one additive pass of a job:
//
//  1. Checks that the subject has at least two live platform connections
//  2. Obtains a live credential for the source and every destination
//     - a platform that was never connected is skipped silently
//     - a credential that cannot be refreshed fails that platform only
//  3. Creates each destination playlist that does not exist yet, exactly once, and records its id before
//     anything else happens
//  4. Fetches the source and destination playlists concurrently, each call bounded by a timeout
//  5. Resolves source tracks missing on each destination (resolution cache first, then search) and adds them in
//     one call
//  6. Records the run status on the job and appends one log entry per platform plus one overall entry
//
// Tracks are never removed. A failure on one platform never stops the others: the run is "partial" when some
// platform failed and at least one destination made progress.
//
// # Scheduling
//
// [Scheduler] ticks after an initial delay and then on a fixed interval, running due jobs one at a time with a
// pause in between. Scheduled and manual runs of the same job share a single-flight group.
//
// # Progress Reporting
//
// [Engine.RunWithProgress] emits [ProgressUpdate] values on a channel. Updates use select with default so a slow
// reader never blocks a run.
package tasks

// Package models defines the domain entities of the playlist sync core and the persistence interfaces around them.
//
// The package contains two categories of types:
//
// 1. Catalog values fetched from platforms during a run and discarded afterwards:
//   - [Playlist] : playlist metadata from one platform
//   - [Track] : song metadata with ISRC and the platform-native reference
//   - [TrackQuery] : the search input used to resolve a track on another platform
//
// 2. Durable records:
//   - [Credential] : OAuth token record per platform and subject
//   - [SyncJob] : a standing source to destination mirroring configuration, with its [Destination] list
//   - [SyncLogEntry] : append-only audit row written once per platform per run plus once overall
//
// The [Repository] interface defines standard CRUD operations used by the job store.
package models

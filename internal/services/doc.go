// Package services defines the [Adapter] contract for music platforms and implements it for Spotify, Deezer and
// YouTube.
//
// # Adapter Interface
//
// Every platform exposes the same six capabilities so the reconciliation engine never branches on platform:
// list playlists, fetch a playlist's tracks, search a track, create a playlist and add tracks. Adapters own
// pagination and batching, and always take the caller's [models.Credential]; they never read or refresh tokens
// themselves.
//
// # Platform Notes
//
//   - Spotify: offset pagination of 100, isrc: search with a track/artist fallback, adds in batches of 100 URIs.
//   - Deezer: index pagination of 100, direct ISRC lookup, adds in batches of 50, access_token as a query param.
//   - YouTube: page tokens of 50, no ISRCs, titles parsed from video titles, adds one video at a time.
//
// # HTTP Plumbing
//
// All adapters share an internal client that applies a per-adapter token bucket limiter, retries 429 responses honoring
// Retry-After, retries 5xx only for GET requests, and maps failures onto the shared error taxonomy:
//   - [shared.ErrNotAuthenticated] : 401 and 403 responses
//   - [shared.ErrPlaylistNotFound] : 404 responses
//   - [shared.ErrTransport] : network failures, 5xx and exhausted rate-limit retries
//   - [shared.ErrPartialBatch] : AddTracks failed after some batches were applied
//
// # OAuth
//
// Adapters also implement [OAuthService] for the authorization code flow and [Refresher] for the refresh_token
// grant, both built on [oauth2.Config]. The [Registry] maps platforms to adapters and is built once from config.
package services

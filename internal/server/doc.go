// Package server provides HTTP routing, middleware, the OAuth callback and the daemon's JSON API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] and [Recoverer] are the middleware used by the daemon.
//
// The [BasicRouter] implementation registers [http.ServeMux] method patterns.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the redirect leg of the authorization code flow. It validates the state parameter
// (CSRF protection), exchanges the code through the platform adapter and sends the result through a channel.
// It only processes one callback to prevent replay attacks.
//
// When the user runs `auth connect`, a temporary HTTP server starts on the configured address, handles the
// callback, and shuts down after receiving the token.
//
// # JSON API
//
// [APIHandler] exposes jobs, manual runs, recent logs and statistics while the daemon runs. Errors are returned
// as {"error", "kind"} objects where kind is the sync error taxonomy label.
package server

// Package services implements the HTTP clients the resolver depends on.
//
// # Community cache
//
// [CommunityClient] queries and feeds the shared community cache service
// (GET /queries, GET /queries/metadata, POST /queries, GET /handshake). The
// handshake result is cached for a window (one hour by default); a 418 from the
// service disables the tier for the rest of that window without re-probing.
// Lookups degrade to an empty result instead of returning errors.
//
// # Spotify
//
// [SpotifyClient] uses the client-credentials flow from [clientcredentials]. Tokens
// are cached by an [oauth2.ReuseTokenSourceWithExpiry] source that replaces them
// 60 seconds before they expire. [SpotifyClient.Pages] is a lazy page producer
// that follows the API's next links.
//
// # YouTube
//
// [YouTubeClient] runs quota-metered searches through a [rate.Limiter]. A quota
// response disables searching for the rest of the process.
//
// # Load node
//
// [LavalinkNode] resolves normalized queries through a Lavalink v4 node and
// converts its typed results into [models.LoadResult].
//
// # Error Handling
//
// Clients use sentinel errors from the shared package:
//   - [shared.ErrMissingCredentials], [shared.ErrAuthMisconfigured] : configuration problems, wrapped in a [shared.UserError]
//   - [shared.ErrQuotaExceeded] : search quota exhausted
//   - [shared.ErrTransientNetwork] : timeout or connection reset
//   - [shared.ErrMalformedResponse] : body did not match the expected schema
//   - [shared.ErrUnavailable] : community tier disabled for the current window
package services

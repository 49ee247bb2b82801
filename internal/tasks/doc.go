// Package tasks resolves music queries through a three-tier fallback with deferred writes.
//
// # Resolution
//
// [Engine.Resolve] consults, in order:
//
//  1. the local sqlite cache (load table), skipped on force refresh or when the load tier is off
//  2. the community cache service, skipped for local queries and provider URIs
//  3. the load node, the only path that reports an API call and schedules a contribution
//
// A cached result flagged as errored goes straight to the load node.
//
// [Engine.ResolveMetadata] expands a Spotify track, album or playlist URI and resolves each
// track through the url table, the community metadata endpoint and YouTube search.
// Progress is reported through a [ProgressNotifier] every two tracks.
//
// # Deferred Writes
//
// Cache inserts, timestamp bumps and community contributions are appended to a [Batcher]
// under the [Request] that produced them and executed by [Batcher.Flush] or [Batcher.FlushAll].
// A failed task is reported in the [FlushResult] and never stops its siblings.
//
// # Errors
//
// Only configuration and quota errors ([shared.IsUserFacing]) leave the engine.
// Everything else degrades to an empty or failed [models.LoadResult].
package tasks

// Package repositories implements sqlite persistence for the resolution cache.
//
// Each table has its own repository that reports storage failures as ordinary errors:
//   - [LoadRepository] : serialized load-node results keyed by canonical query
//   - [URLRepository] : search results keyed by "title artist" descriptor
//   - [MetadataRepository] : provider track metadata keyed by URI
//
// [CacheStore] sits in front of the three and is what the rest of the program uses.
// Its reads fail open: any storage error, stale row or undecodable payload is
// logged and reported as a miss that needs refreshing, so the cache can never
// abort a resolution. Writes return errors so the batcher can record them per task.
//
// Timestamps are unix seconds. Rows are never deleted; age is enforced when reading.
package repositories

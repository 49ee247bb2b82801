// Package models defines the value types shared by the resolution pipeline.
//
// The package contains three groups of types:
//
// 1. Queries: [Query] and [NormalizeQuery], which classify raw user input into
// a canonical, provider-ready form. Invalid queries never reach a cache or a provider.
//
// 2. Results: [LoadResult] and [Track], the canonical outcome of loading a query.
// [ParseLoadResult] validates untyped JSON at the boundary so nothing downstream
// handles raw maps.
//
// 3. Cache records: [LoadRecord], [URLRecord] and [MetadataRecord], the three
// variants of [Record] tagged by [Table], and [CacheLevel], the bitmask that
// selects which of those tables are active.
package models

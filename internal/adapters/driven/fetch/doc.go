// Package fetch retrieves catalog documents and dataset contents from
// upstream locations.
//
// # Architecture
//
// The fetcher implements [driven.EntityFetcher] and [driven.CatalogFetcher].
// It comprises the following components:
//
//   - Fetcher: plans full or delta loads and streams entity operations
//   - RateLimiter: throttles HTTP requests and honours Retry-After
//   - open: resolves a location to a byte stream
//
// # Locations
//
// Local paths, file:// URLs, http(s):// URLs and s3://bucket/key objects
// are supported. Names ending in .gz or .zst are decompressed on the fly.
//
// # Formats
//
// ndjson sources carry one entity per line, or one {"op", "entity"}
// operation per line for delta files. paged sources return JSON pages of
// the form {"results": [...], "next": "..."}; a Link header with
// rel="next" is followed when the body carries no next URL.
package fetch

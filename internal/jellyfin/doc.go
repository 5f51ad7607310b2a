// Package jellyfin is a small client for the Jellyfin server REST API.
//
// Read endpoints are memoized in a shared cache keyed by resource
// ("users:all", "users:{id}", "system:info", ...). Writes that change a
// resource invalidate every key under its prefix.
package jellyfin

// Package catalog defines the boundary to the external catalog API.
//
// The observability core never talks to the catalog service directly; it
// goes through the Client interface, which exposes the four read-only calls
// the canary battery is built from:
//
//   - CatalogInfo: API capability and limits fetch
//   - ListLocations: merchant locations enumeration
//   - SearchObjects: minimal catalog object search
//   - APIVersion: reported API version fetch
//
// The package also ships an HTTP implementation and a resilient wrapper that
// layers circuit breaking and retry on top of any Client.
package catalog

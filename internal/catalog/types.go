package catalog

import "context"

// Info describes the catalog API capabilities reported by the service.
// The Limits block is the structural anchor the canary battery checks for:
// its disappearance from a response is treated as schema drift.
type Info struct {
	APIVersion string  `json:"api_version"`
	Limits     *Limits `json:"limits"`
}

// Limits holds the batch-size ceilings advertised by the catalog API.
type Limits struct {
	BatchUpsertMaxObjects    int `json:"batch_upsert_max_objects"`
	BatchRetrieveMaxObjects  int `json:"batch_retrieve_max_objects"`
	SearchMaxPageSize        int `json:"search_max_page_size"`
	UpdateItemTaxesMaxItems  int `json:"update_item_taxes_max_items"`
	UpdateModifierListsMax   int `json:"update_modifier_lists_max"`
}

// Location is a single merchant location.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Currency string `json:"currency,omitempty"`
}

// SearchRequest narrows an object search. The canary battery issues the
// minimal form: one object type, limit 1.
type SearchRequest struct {
	ObjectTypes []string `json:"object_types"`
	Limit       int      `json:"limit"`
	Cursor      string   `json:"cursor,omitempty"`
}

// SearchResult is a page of catalog objects.
type SearchResult struct {
	Objects []Object `json:"objects"`
	Cursor  string   `json:"cursor,omitempty"`
}

// Object is a catalog object in its minimal form. Enrichment callers carry
// richer shapes; the observability core only needs identity and type.
type Object struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Client is the minimal surface the observability core requires from the
// wrapped catalog API. Implementations must be safe for concurrent use.
type Client interface {
	// CatalogInfo fetches API capabilities and limits.
	CatalogInfo(ctx context.Context) (*Info, error)

	// ListLocations enumerates the merchant's locations.
	ListLocations(ctx context.Context) ([]Location, error)

	// SearchObjects runs a catalog object search.
	SearchObjects(ctx context.Context, req SearchRequest) (*SearchResult, error)

	// APIVersion returns the version string the service currently reports.
	APIVersion(ctx context.Context) (string, error)
}

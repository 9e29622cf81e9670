package domain

import "time"

// DatasetStatus compares one dataset's upstream and indexed versions.
type DatasetStatus struct {
	Name         string      `json:"name"`
	Title        string      `json:"title,omitempty"`
	Kind         DatasetKind `json:"kind"`
	Load         bool        `json:"load"`
	Version      string      `json:"version,omitempty"`
	IndexVersion string      `json:"index_version,omitempty"`
	IndexCurrent bool        `json:"index_current"`
	Entities     int         `json:"entities,omitempty"`
	Error        string      `json:"error,omitempty"`
	Children     []string    `json:"children,omitempty"`
}

// CatalogStatus is the freshness report of the deployment.
type CatalogStatus struct {
	Datasets     []DatasetStatus `json:"datasets"`
	Current      []string        `json:"current"`
	Outdated     []string        `json:"outdated"`
	IndexStale   bool            `json:"index_stale"`
	CatalogFresh bool            `json:"catalog_fresh"`
	State        IndexState      `json:"state"`
	Generation   string          `json:"generation,omitempty"`
	LastCheck    time.Time       `json:"last_check,omitzero"`
	LastSuccess  time.Time       `json:"last_success,omitzero"`
	LastError    string          `json:"last_error,omitempty"`
}

package domain

import "time"

// FetchMode selects between a full reload and applying deltas.
type FetchMode string

// Fetch modes.
const (
	FetchFull  FetchMode = "full"
	FetchDelta FetchMode = "delta"
)

// DeltaRef is one published delta file.
type DeltaRef struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// FetchPlan is how a dataset will be brought to its target version.
type FetchPlan struct {
	Mode FetchMode

	// BaseVersion is the version already indexed, empty for a first load.
	BaseVersion string

	// TargetVersion is the version reached after the plan is applied.
	TargetVersion string

	// Deltas are applied in order when Mode is FetchDelta.
	Deltas []DeltaRef
}

// DatasetAction is what a build does with one dataset.
type DatasetAction string

// Dataset actions.
const (
	ActionKeep   DatasetAction = "keep"
	ActionFull   DatasetAction = "full"
	ActionDelta  DatasetAction = "delta"
	ActionRemove DatasetAction = "remove"
)

// DatasetPlan is the check result for one dataset.
type DatasetPlan struct {
	Dataset       string        `json:"dataset"`
	Action        DatasetAction `json:"action"`
	IndexVersion  string        `json:"index_version,omitempty"`
	TargetVersion string        `json:"target_version,omitempty"`
}

// BuildStatus is the settled result of an update.
type BuildStatus string

// Build statuses.
const (
	BuildUnchanged BuildStatus = "unchanged"
	BuildPromoted  BuildStatus = "promoted"
	BuildFailed    BuildStatus = "failed"
)

// BuildOutcome is returned by every update call, including callers that
// joined an in-flight build.
type BuildOutcome struct {
	Status     BuildStatus       `json:"status"`
	Generation string            `json:"generation,omitempty"`
	Plans      []DatasetPlan     `json:"plans,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
}

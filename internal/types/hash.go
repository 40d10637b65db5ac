package types

// ConfigHashes aggregates the stable fingerprints the Orchestrator uses to
// decide whether a run can be skipped in favor of cached output (§4.11).
type ConfigHashes struct {
	FullConfigHash string
	TerrainHash    string
	LayerHashes    []string
}

// ProcessID is an opaque identifier minted per generation run; all
// resource registrations in the Context Pool are namespaced by it.
type ProcessID string

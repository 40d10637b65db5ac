// Package progress implements the generate() progress callback contract
// (§6): stage/percentage/message events flowing from the pipeline back to
// an external sink, with percentage guaranteed non-decreasing as reported
// (§5: "Progress callbacks from different layers may interleave; overall
// percentage is non-decreasing as reported to the external sink").
package progress

import "sync"

// Stage is one of the named pipeline phases a progress event belongs to.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageTerrain      Stage = "terrain"
	StageLayers       Stage = "layers"
	StageFinalizing   Stage = "finalizing"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// Bands the Orchestrator's own stages occupy within the overall 0..100
// percentage (§4.10 step 4 and 6).
const (
	TerrainBandStart = 0
	TerrainBandEnd   = 20
	LayersBandStart  = 20
	LayersBandEnd    = 90
	FinalizeBandEnd  = 100
)

// Callback receives progress events; stage, pct in [0,100], and a short
// human-readable message.
type Callback func(stage Stage, pct int, message string)

// Aggregator wraps a Callback with the monotonic-percentage guarantee and
// is safe for concurrent use by multiple layer contexts.
type Aggregator struct {
	cb      Callback
	mu      sync.Mutex
	lastPct int
}

// NewAggregator wraps cb. A nil cb yields a no-op Aggregator.
func NewAggregator(cb Callback) *Aggregator {
	return &Aggregator{cb: cb}
}

// Report forwards a progress event, clamping pct so it never regresses
// the last value reported to the sink.
func (a *Aggregator) Report(stage Stage, pct int, message string) {
	if a == nil || a.cb == nil {
		return
	}
	a.mu.Lock()
	if pct < a.lastPct {
		pct = a.lastPct
	}
	if pct > 100 {
		pct = 100
	}
	a.lastPct = pct
	cb := a.cb
	a.mu.Unlock()

	cb(stage, pct, message)
}

// LayerBand computes the [start,end) percentage sub-range a given layer
// (by index among layerCount enabled layers) occupies within the overall
// layers band (§4.10 step 6: "aggregate per-layer progress into overall
// 20→90%").
func LayerBand(layerIndex, layerCount int) (start, end int) {
	if layerCount <= 0 {
		return LayersBandStart, LayersBandEnd
	}
	span := LayersBandEnd - LayersBandStart
	start = LayersBandStart + span*layerIndex/layerCount
	end = LayersBandStart + span*(layerIndex+1)/layerCount
	return start, end
}

// ScaleIntoBand maps a sub-progress percentage (0..100) into [start,end].
func ScaleIntoBand(subPct, start, end int) int {
	if subPct < 0 {
		subPct = 0
	}
	if subPct > 100 {
		subPct = 100
	}
	return start + (end-start)*subPct/100
}

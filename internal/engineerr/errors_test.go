package engineerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindNetworkTimeout, "terrain", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if !Is(err, KindNetworkTimeout) {
		t.Fatalf("expected Is() to match KindNetworkTimeout")
	}
	if Is(err, KindCancelled) {
		t.Fatalf("expected Is() not to match KindCancelled")
	}
}

func TestIs_ThroughFmtWrap(t *testing.T) {
	base := New(KindTerrainProcessingFailed, "grid invariant violated")
	wrapped := fmt.Errorf("building grid: %w", base)

	if !Is(wrapped, KindTerrainProcessingFailed) {
		t.Fatalf("expected Is() to see through fmt.Errorf wrapping")
	}
}

func TestWithContext_MergesWithoutMutatingOriginal(t *testing.T) {
	base := New(KindLayerProcessingFailed, "bad geometry")
	base.Context = map[string]any{"layer": "roads"}

	extended := base.WithContext(map[string]any{"feature": 42})

	if len(base.Context) != 1 {
		t.Fatalf("expected original error's context to be untouched")
	}
	if extended.Context["layer"] != "roads" || extended.Context["feature"] != 42 {
		t.Fatalf("expected merged context, got %+v", extended.Context)
	}
}

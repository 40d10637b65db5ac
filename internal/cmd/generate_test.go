package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/terrain3d/internal/types"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.BBox
		wantErr bool
	}{
		{
			name:  "valid bbox",
			input: "9.7,52.3,9.9,52.4",
			want:  types.BBox{West: 9.7, South: 52.3, East: 9.9, North: 52.4},
		},
		{
			name:  "valid bbox with spaces",
			input: "9.7, 52.3, 9.9, 52.4",
			want:  types.BBox{West: 9.7, South: 52.3, East: 9.9, North: 52.4},
		},
		{
			name:  "negative coordinates",
			input: "-122.5,37.7,-122.3,37.9",
			want:  types.BBox{West: -122.5, South: 37.7, East: -122.3, North: 37.9},
		},
		{name: "too few values", input: "9.7,52.3,9.9", wantErr: true},
		{name: "too many values", input: "9.7,52.3,9.9,52.4,10.0", wantErr: true},
		{name: "invalid number", input: "abc,52.3,9.9,52.4", wantErr: true},
		{name: "west >= east", input: "10.0,52.3,9.9,52.4", wantErr: true},
		{name: "south >= north", input: "9.7,52.5,9.9,52.4", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseBBox(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseBBox(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.want {
				t.Errorf("parseBBox(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRGB(t *testing.T) {
	got, err := parseRGB("0.1,0.2,0.3")
	if err != nil {
		t.Fatalf("parseRGB() error = %v", err)
	}
	want := types.RGB{R: 0.1, G: 0.2, B: 0.3}
	if got != want {
		t.Errorf("parseRGB() = %+v, want %+v", got, want)
	}

	if _, err := parseRGB("0.1,0.2"); err == nil {
		t.Error("parseRGB() with 2 components expected error, got nil")
	}
	if _, err := parseRGB("x,0.2,0.3"); err == nil {
		t.Error("parseRGB() with invalid number expected error, got nil")
	}
}

func TestLoadLayerConfigs(t *testing.T) {
	yamlContent := `
layers:
  - source_layer: building
    label: Buildings
    buffer_size: 0.5
    height_scale_factor: 1.0
    use_adaptive_scale_factor: true
    order: 1
    color: [0.8, 0.2, 0.2]
    filter: ["==", "type", "residential"]
  - source_layer: road
    label: Roads
    enabled: false
    order: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	layers, err := loadLayerConfigs(path)
	if err != nil {
		t.Fatalf("loadLayerConfigs() error = %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}

	buildings := layers[0]
	if buildings.Label != "Buildings" || buildings.SourceLayer != "building" {
		t.Errorf("unexpected buildings layer: %+v", buildings)
	}
	if !buildings.Enabled {
		t.Errorf("expected buildings layer to default to enabled")
	}
	if buildings.Filter == nil {
		t.Fatalf("expected buildings layer to carry a parsed filter")
	}
	if !buildings.Filter.Evaluate(map[string]interface{}{"type": "residential"}) {
		t.Errorf("expected filter to match type=residential")
	}
	if buildings.Filter.Evaluate(map[string]interface{}{"type": "commercial"}) {
		t.Errorf("expected filter to reject type=commercial")
	}

	roads := layers[1]
	if roads.Enabled {
		t.Errorf("expected roads layer to be disabled")
	}
}

func TestLoadLayerConfigs_InvalidFilterRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	content := "layers:\n  - label: Bad\n    filter: \"not-an-array\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := loadLayerConfigs(path); err == nil {
		t.Error("expected error for a non-array filter expression")
	}
}

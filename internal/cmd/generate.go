package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/terrain3d/internal/engine"
	"github.com/MeKo-Tech/terrain3d/internal/filter"
	"github.com/MeKo-Tech/terrain3d/internal/orchestrator"
	"github.com/MeKo-Tech/terrain3d/internal/previewpng"
	"github.com/MeKo-Tech/terrain3d/internal/progress"
	"github.com/MeKo-Tech/terrain3d/internal/tilecache"
	"github.com/MeKo-Tech/terrain3d/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a 3D terrain scene for a bounding box",
	Long:  `generate fetches DEM and vector tiles for a bounding box and produces a terrain mesh plus one mesh per enabled layer.`,
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("bbox", "", "Bounding box: west,south,east,north (required)")
	generateCmd.Flags().String("vector-tile-url", "", "MVT tile URL template, e.g. https://tiles.example.com/{z}/{x}/{y}.mvt")
	generateCmd.Flags().String("raster-tile-url", "", "Terrain-RGB DEM tile URL template, e.g. https://tiles.example.com/terrain/{z}/{x}/{y}.png")
	generateCmd.Flags().Int("tile-size", 256, "Tile size in pixels")
	generateCmd.Flags().Int("grid-size", 256, "Elevation grid resolution (width and height, samples)")
	generateCmd.Flags().Int64("seed", 1337, "Deterministic seed for hole-filling noise")
	generateCmd.Flags().Float32("terrain-exaggeration", 1.0, "Vertical exaggeration applied to elevation samples")
	generateCmd.Flags().Float32("terrain-base", 0, "Thickness of the solid base block under the terrain mesh")
	generateCmd.Flags().String("terrain-color", "", "Fixed terrain color r,g,b in [0,1] (default: elevation-interpolated)")
	generateCmd.Flags().String("layers", "", "Path to a YAML file describing layer configs")
	generateCmd.Flags().Int("workers", 0, "Context Pool size (default: number of CPUs, capped at 8)")
	generateCmd.Flags().String("cache-db", "", "Optional sqlite path for a persistent tile cache")
	generateCmd.Flags().String("debug-png", "", "Optional path to write a top-down PNG preview of the generated scene")
	generateCmd.Flags().Int("debug-png-size", 1024, "Debug PNG canvas size in pixels (square)")
	generateCmd.Flags().Duration("timeout", 0, "Overall generation timeout (0 = no timeout)")

	bindFlags := []struct{ key, flag string }{
		{"generate.bbox", "bbox"},
		{"generate.vector_tile_url", "vector-tile-url"},
		{"generate.raster_tile_url", "raster-tile-url"},
		{"generate.tile_size", "tile-size"},
		{"generate.grid_size", "grid-size"},
		{"generate.seed", "seed"},
		{"generate.terrain_exaggeration", "terrain-exaggeration"},
		{"generate.terrain_base", "terrain-base"},
		{"generate.terrain_color", "terrain-color"},
		{"generate.layers", "layers"},
		{"generate.workers", "workers"},
		{"generate.cache_db", "cache-db"},
		{"generate.debug_png", "debug-png"},
		{"generate.debug_png_size", "debug-png-size"},
		{"generate.timeout", "timeout"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	bboxStr := viper.GetString("generate.bbox")
	if bboxStr == "" {
		return fmt.Errorf("--bbox is required")
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}

	layersPath := viper.GetString("generate.layers")
	var layers []types.LayerConfig
	if layersPath != "" {
		layers, err = loadLayerConfigs(layersPath)
		if err != nil {
			return fmt.Errorf("failed to load layer configs: %w", err)
		}
	}

	terrain := types.TerrainSettings{
		Enabled:              true,
		VerticalExaggeration: float32(viper.GetFloat64("generate.terrain_exaggeration")),
		BaseHeight:           float32(viper.GetFloat64("generate.terrain_base")),
	}
	if c := viper.GetString("generate.terrain_color"); c != "" {
		rgb, err := parseRGB(c)
		if err != nil {
			return fmt.Errorf("invalid --terrain-color: %w", err)
		}
		terrain.Color = &rgb
	}

	var cache *tilecache.Cache
	if path := viper.GetString("generate.cache_db"); path != "" {
		backend, err := tilecache.OpenLocalBackend(path)
		if err != nil {
			return fmt.Errorf("failed to open tile cache: %w", err)
		}
		defer backend.Close()
		cache = tilecache.New(backend)
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.VectorTileURLTemplate = viper.GetString("generate.vector_tile_url")
	orchCfg.RasterTileURLTemplate = viper.GetString("generate.raster_tile_url")
	if ts := viper.GetInt("generate.tile_size"); ts > 0 {
		orchCfg.TileSize = ts
	}
	if gs := viper.GetInt("generate.grid_size"); gs > 0 {
		orchCfg.GridWidth, orchCfg.GridHeight = gs, gs
	}
	orchCfg.Seed = viper.GetInt64("generate.seed")

	eng := engine.New(engine.Config{
		Orchestrator: orchCfg,
		PoolSize:     viper.GetInt("generate.workers"),
		Cache:        cache,
		Logger:       logger,
	})
	defer eng.Stop()

	ctx := context.Background()
	if timeout := viper.GetDuration("generate.timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt signal, cancelling")
		cancel()
	}()

	progressCb := progress.Callback(func(stage progress.Stage, pct int, message string) {
		logger.Info("progress", "stage", string(stage), "pct", pct, "message", message)
	})

	result, err := eng.Generate(ctx, bbox, terrain, layers, progressCb)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}

	logger.Info("terrain mesh generated",
		"vertices", result.TerrainGeometry.VertexCount(),
		"triangles", result.TerrainGeometry.TriangleCount(),
	)
	for label, geo := range result.LayerGeometries {
		logger.Info("layer mesh generated", "label", label,
			"vertices", geo.VertexCount(), "triangles", geo.TriangleCount())
	}

	if path := viper.GetString("generate.debug_png"); path != "" {
		if err := writeDebugPNG(path, viper.GetInt("generate.debug_png_size"), bbox, result, layers); err != nil {
			return fmt.Errorf("failed to write debug PNG: %w", err)
		}
		logger.Info("debug PNG written", "path", path)
	}

	return nil
}

func writeDebugPNG(path string, size int, bbox types.BBox, result orchestrator.Result, layers []types.LayerConfig) error {
	styles := make([]previewpng.LayerStyle, 0, len(result.LayerGeometries)+1)
	styles = append(styles, previewpng.LayerStyle{
		Label:    "terrain",
		Geometry: result.TerrainGeometry,
		Color:    previewpng.ColorForIndex(0),
	})

	ordered := sortedLabels(layers)
	for i, label := range ordered {
		geo, ok := result.LayerGeometries[label]
		if !ok {
			continue
		}
		styles = append(styles, previewpng.LayerStyle{
			Label:    label,
			Geometry: geo,
			Color:    previewpng.ColorForIndex(i + 1),
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return previewpng.Render(f, bbox, previewpng.Canvas{Width: size, Height: size}, styles)
}

// sortedLabels returns layer labels in configured Order, so the debug PNG
// draws later (higher Order) layers on top of earlier ones.
func sortedLabels(layers []types.LayerConfig) []string {
	type entry struct {
		label string
		order int
	}
	entries := make([]entry, 0, len(layers))
	for _, l := range layers {
		if !l.Enabled {
			continue
		}
		entries = append(entries, entry{label: l.Label, order: l.Order})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].order < entries[j-1].order; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.label
	}
	return labels
}

func parseBBox(s string) (types.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.BBox{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return types.BBox{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		vals[i] = val
	}
	bbox := types.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if !bbox.Valid() {
		return types.BBox{}, fmt.Errorf("west/south must be < east/north, got %s", bbox.String())
	}
	return bbox, nil
}

func parseRGB(s string) (types.RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return types.RGB{}, fmt.Errorf("expected 3 comma-separated values, got %d", len(parts))
	}
	var vals [3]float32
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return types.RGB{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		vals[i] = float32(val)
	}
	return types.RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

// layerFile is the on-disk YAML shape for --layers: a list of layer
// configs in MapLibre-ish field names, decoded into types.LayerConfig.
type layerFile struct {
	Layers []layerYAML `yaml:"layers"`
}

type layerYAML struct {
	SourceLayer            string      `yaml:"source_layer"`
	Label                   string      `yaml:"label"`
	Enabled                 *bool       `yaml:"enabled"`
	Color                   []float32   `yaml:"color"`
	Filter                  interface{} `yaml:"filter"`
	BufferSize              float32     `yaml:"buffer_size"`
	ExtrusionDepth          *float32    `yaml:"extrusion_depth"`
	MinExtrusionDepth       *float32    `yaml:"min_extrusion_depth"`
	HeightScaleFactor       float32     `yaml:"height_scale_factor"`
	UseAdaptiveScaleFactor  bool        `yaml:"use_adaptive_scale_factor"`
	ZOffset                 float32     `yaml:"z_offset"`
	AlignVerticesToTerrain  bool        `yaml:"align_vertices_to_terrain"`
	UseCsgClipping          bool        `yaml:"use_csg_clipping"`
	Order                   int         `yaml:"order"`
	GeometryDebugMode       bool        `yaml:"geometry_debug_mode"`
}

func loadLayerConfigs(path string) ([]types.LayerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lf layerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("invalid layer YAML: %w", err)
	}

	out := make([]types.LayerConfig, 0, len(lf.Layers))
	for _, ly := range lf.Layers {
		cfg, err := ly.toLayerConfig()
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", ly.Label, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (ly layerYAML) toLayerConfig() (types.LayerConfig, error) {
	enabled := true
	if ly.Enabled != nil {
		enabled = *ly.Enabled
	}

	var color types.RGB
	if len(ly.Color) == 3 {
		color = types.RGB{R: ly.Color[0], G: ly.Color[1], B: ly.Color[2]}
	}

	var expr *filter.Expression
	if ly.Filter != nil {
		raw, err := json.Marshal(ly.Filter)
		if err != nil {
			return types.LayerConfig{}, fmt.Errorf("re-encoding filter: %w", err)
		}
		expr, err = filter.Parse(raw)
		if err != nil {
			return types.LayerConfig{}, err
		}
	}

	return types.LayerConfig{
		SourceLayer:            ly.SourceLayer,
		Label:                  ly.Label,
		Enabled:                enabled,
		Color:                  color,
		Filter:                 expr,
		BufferSize:             ly.BufferSize,
		ExtrusionDepth:         ly.ExtrusionDepth,
		MinExtrusionDepth:      ly.MinExtrusionDepth,
		HeightScaleFactor:      ly.HeightScaleFactor,
		UseAdaptiveScaleFactor: ly.UseAdaptiveScaleFactor,
		ZOffset:                ly.ZOffset,
		AlignVerticesToTerrain: ly.AlignVerticesToTerrain,
		UseCsgClipping:         ly.UseCsgClipping,
		Order:                  ly.Order,
		GeometryDebugMode:      ly.GeometryDebugMode,
	}, nil
}

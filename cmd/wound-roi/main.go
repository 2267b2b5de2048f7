package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	woundroi "github.com/menta2k/wound-roi"
	"github.com/menta2k/wound-roi/internal/config"
	"github.com/menta2k/wound-roi/internal/utils"
	"github.com/menta2k/wound-roi/pkg/detection"
	"github.com/menta2k/wound-roi/pkg/draft"
	"github.com/menta2k/wound-roi/pkg/healing"
	"github.com/menta2k/wound-roi/pkg/overlay"
	"github.com/menta2k/wound-roi/pkg/processing"
	"github.com/menta2k/wound-roi/pkg/types"
)

// previewMaxDim caps the SVG overlay canvas
const previewMaxDim = 1024

type options struct {
	in, outDir, configPath, envFile string
	backend, url, model             string
	polygon                         string
	ext                             string
	quality                         int
	lossless                        bool
	svg                             bool
	zoomSteps, quarterTurns         int
	brightness, contrast            int
	grayscale, invert               int
	preset                          string
	submit                          bool
	patient, api, token             string
	testVision                      bool
	verbose                         bool
}

func main() {
	var o options
	flag.StringVar(&o.in, "in", "", "comma separated image paths, directories or URLs (jpg/png/gif/webp)")
	flag.StringVar(&o.outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&o.configPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&o.envFile, "env", ".env", "dotenv file with WOUND_* overrides")

	flag.StringVar(&o.backend, "backend", "", "analysis backend: mlservice|ollama|llamacpp|none")
	flag.StringVar(&o.url, "url", "", "analysis server URL")
	flag.StringVar(&o.model, "model", "", "vision model for the ollama and llamacpp backends")

	flag.StringVar(&o.polygon, "polygon", "", `wound outline on the first image in percent, e.g. "10,10 50,10 50,50 10,50"`)
	flag.StringVar(&o.ext, "ext", "", "output format for crops: jpg|png|webp")
	flag.IntVar(&o.quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&o.lossless, "lossless", false, "WebP output lossless mode")
	flag.BoolVar(&o.svg, "svg", false, "write an SVG viewer overlay of the first image")

	flag.IntVar(&o.zoomSteps, "zoom", 0, "viewer zoom steps of 0.2 (negative zooms out)")
	flag.IntVar(&o.quarterTurns, "rotate", 0, "viewer quarter turns clockwise")
	flag.IntVar(&o.brightness, "brightness", 100, "brightness filter of the first image (50-200)")
	flag.IntVar(&o.contrast, "contrast", 100, "contrast filter of the first image (50-250)")
	flag.IntVar(&o.grayscale, "grayscale", 0, "grayscale filter of the first image (0-100)")
	flag.IntVar(&o.invert, "invert", 0, "invert filter of the first image (0-100)")
	flag.StringVar(&o.preset, "preset", "", "quick filter applied after the sliders: boost|bw|invert")

	flag.BoolVar(&o.submit, "submit", false, "submit the assessment to the records API")
	flag.StringVar(&o.patient, "patient", "", "patient ID")
	flag.StringVar(&o.api, "api", "", "records API base URL")
	flag.StringVar(&o.token, "token", "", "records API bearer token")
	flag.BoolVar(&o.testVision, "test-vision", false, "ask the ollama/llamacpp model to describe the first image and exit")
	flag.BoolVar(&o.verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if o.in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in a.jpg,b.png [-polygon \"x,y x,y x,y\"] [-backend mlservice|ollama|llamacpp|none] [-out dir] [-svg] [-submit -patient ID]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if err := run(context.Background(), o, logger); err != nil {
		logger.Error("wound-roi failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	if err := config.LoadEnv(o.envFile); err != nil {
		return nil, err
	}

	cfg := config.Default()
	path := o.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if o.backend != "" {
		cfg.Analysis.Backend = o.backend
	}
	if o.url != "" {
		cfg.Analysis.URL = o.url
	}
	if o.model != "" {
		cfg.Analysis.Model = o.model
	}
	if o.api != "" {
		cfg.API.BaseURL = o.api
	}
	if o.token != "" {
		cfg.API.Token = o.token
	}
	if o.outDir != "" {
		cfg.Output.OutputDir = o.outDir
	}
	if o.ext != "" {
		cfg.Output.DefaultFormat = o.ext
	}
	if o.quality != 0 {
		cfg.Output.Quality = o.quality
	}
	if o.lossless {
		cfg.Output.Lossless = true
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sources, err := utils.ExpandSources(strings.Split(o.in, ","))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources in %q", o.in)
	}
	if o.testVision {
		return testVision(ctx, cfg, sources[0], os.Stdout, logger)
	}

	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ws, err := woundroi.New(cfg, logger)
	if err != nil {
		return err
	}

	d, err := ws.NewDraft(ctx, o.patient)
	if err != nil {
		return err
	}
	if _, err := ws.AddSources(ctx, d, sources); err != nil {
		logger.Warn("some sources were not added", "error", err)
	}
	if d.Len() == 0 {
		return fmt.Errorf("no usable images in %q", o.in)
	}

	d.Wait()
	reportAnalysis(d, logger)

	if err := annotate(d, o); err != nil {
		return err
	}

	files, err := writeOutputs(ws, d, cfg.Output, o.svg, logger)
	if err != nil {
		return err
	}

	if err := writeSummary(d, files, cfg.Output.OutputDir); err != nil {
		return err
	}

	if o.submit {
		created, err := ws.Submit(ctx, d)
		if err != nil {
			return err
		}
		logger.Info("assessment saved", "id", created.ID, "patient", d.PatientID())
	}
	return nil
}

// testVision checks that the configured vision model can see images at all
func testVision(ctx context.Context, cfg *config.Config, source string, w io.Writer, logger *slog.Logger) error {
	analyzer, err := woundroi.NewAnalyzer(cfg.Analysis, logger)
	if err != nil {
		return err
	}
	detector, ok := analyzer.(*detection.Detector)
	if !ok {
		return fmt.Errorf("-test-vision needs the ollama or llamacpp backend, not %q", cfg.Analysis.Backend)
	}

	data, err := processing.NewProcessor().ReadSource(source)
	if err != nil {
		return err
	}
	img, format, err := processing.Decode(data)
	if err != nil {
		return err
	}
	payload, err := processing.PrepareJPEG(img, data, format, cfg.Analysis.SendMaxDim, cfg.Analysis.SendQuality)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Analysis.Timeout())
	defer cancel()
	reply, err := detector.TestVision(ctx, base64.StdEncoding.EncodeToString(payload))
	if err != nil {
		return fmt.Errorf("vision test failed: %w", err)
	}
	logger.Info("vision test complete", "backend", cfg.Analysis.Backend, "model", cfg.Analysis.Model, "source", source)
	_, err = fmt.Fprintln(w, reply)
	return err
}

func reportAnalysis(d *draft.Draft, logger *slog.Logger) {
	status := d.Analysis()
	switch status.State {
	case draft.AnalysisAnalyzed:
		r := status.Result
		logger.Info("analysis", "wound_type", r.WoundType, "stage", r.Stage,
			"length", r.Dimensions.Length, "width", r.Dimensions.Width,
			"confidence", r.ConfidenceScore, "healing_days", r.HealingEstimateDays)
	case draft.AnalysisFailed:
		logger.Warn("analysis failed, continuing with manual entry", "error", status.Err)
	default:
		logger.Info("analysis", "state", status.State)
	}

	if rate := d.ReductionRate(); rate != nil {
		logger.Info("healing progress", "reduction_percent", healing.Round1(*rate))
	}
}

// annotate applies the viewer, polygon and filter flags to the first image
func annotate(d *draft.Draft, o options) error {
	if err := d.OpenViewer(0); err != nil {
		return err
	}

	for i := 0; i < abs(o.zoomSteps); i++ {
		step := d.ZoomIn
		if o.zoomSteps < 0 {
			step = d.ZoomOut
		}
		if err := step(); err != nil {
			return err
		}
	}
	for i := 0; i < ((o.quarterTurns%4)+4)%4; i++ {
		if err := d.Rotate(); err != nil {
			return err
		}
	}

	if o.polygon != "" {
		points, err := parsePolygon(o.polygon)
		if err != nil {
			return err
		}
		if err := d.TogglePointing(); err != nil {
			return err
		}
		for _, p := range points {
			if err := d.AddPoint(0, p); err != nil {
				return err
			}
		}
		if err := d.TogglePointing(); err != nil {
			return err
		}
	}

	sliders := map[types.FilterProperty]int{
		types.Brightness: o.brightness,
		types.Contrast:   o.contrast,
		types.Grayscale:  o.grayscale,
		types.Invert:     o.invert,
	}
	for property, value := range sliders {
		if err := d.SetFilter(0, property, value); err != nil {
			return err
		}
	}
	if o.preset != "" {
		if err := d.ApplyPreset(0, types.FilterPreset(o.preset)); err != nil {
			return err
		}
	}
	return nil
}

type outputFiles struct {
	Crops   map[int]string `json:"crops,omitempty"`
	Preview string         `json:"preview,omitempty"`
	Overlay string         `json:"overlay,omitempty"`
}

func writeOutputs(ws *woundroi.Workspace, d *draft.Draft, out config.OutputConfig, withSVG bool, logger *slog.Logger) (outputFiles, error) {
	files := outputFiles{Crops: map[int]string{}}
	format := strings.ToLower(out.DefaultFormat)

	for i := 0; i < d.Len(); i++ {
		crop, ok, err := ws.Crop(d, i)
		if err != nil {
			return files, err
		}
		if !ok {
			continue
		}
		path := utils.GenerateOutputFilename(fmt.Sprintf("wound_%d", i), out.OutputDir, out.Prefix, out.Suffix, format)
		if err := processing.SaveImage(crop, path, format, out.Quality, out.Lossless); err != nil {
			return files, fmt.Errorf("failed to save crop %d: %w", i, err)
		}
		logWritten(logger, path)
		files.Crops[i] = path
	}

	img, err := d.Image(0)
	if err != nil {
		return files, err
	}
	if effect := d.Effect(0); !effect.IsIdentity() {
		path := utils.GenerateOutputFilename("wound_0", out.OutputDir, out.Prefix, "_filtered", format)
		if err := processing.SaveImage(processing.ApplyFilters(img.Decoded, effect), path, format, out.Quality, out.Lossless); err != nil {
			return files, fmt.Errorf("failed to save filtered preview: %w", err)
		}
		logWritten(logger, path)
		files.Preview = path
	}

	if withSVG {
		w, h := fitWithin(img.NaturalWidth(), img.NaturalHeight(), previewMaxDim)
		var buf bytes.Buffer
		err := overlay.Render(&buf, d.Viewer(), d.Polygon(0), d.Effect(0), overlay.Options{
			Width: w, Height: h, Href: overlay.DataURI(img), Title: "wound 0",
		})
		if err != nil {
			return files, fmt.Errorf("failed to render overlay: %w", err)
		}
		path := filepath.Join(out.OutputDir, "wound_0_overlay.svg")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return files, fmt.Errorf("failed to write overlay: %w", err)
		}
		logWritten(logger, path)
		files.Overlay = path
	}
	return files, nil
}

func writeSummary(d *draft.Draft, files outputFiles, outDir string) error {
	snap := d.Snapshot()

	type imageSummary struct {
		Info    types.ImageInfo    `json:"info"`
		Polygon types.Polygon      `json:"polygon,omitempty"`
		Filters types.FilterParams `json:"filters"`
	}
	images := make([]imageSummary, len(snap.Images))
	for i, img := range snap.Images {
		images[i] = imageSummary{Info: img.Info(), Polygon: snap.Polygons[i], Filters: d.Effect(i)}
	}

	summary := struct {
		DraftID       string                `json:"draft_id"`
		PatientID     string                `json:"patient_id,omitempty"`
		State         string                `json:"analysis_state"`
		Analysis      *types.AnalysisResult `json:"analysis,omitempty"`
		Fields        draft.Measurements    `json:"fields"`
		ReductionRate *float64              `json:"reduction_rate,omitempty"`
		Images        []imageSummary        `json:"images"`
		Files         outputFiles           `json:"files"`
	}{
		DraftID:       snap.DraftID.String(),
		PatientID:     snap.PatientID,
		State:         d.Analysis().State.String(),
		Analysis:      snap.Analysis,
		Fields:        snap.Fields,
		ReductionRate: snap.ReductionRate,
		Images:        images,
		Files:         files,
	}

	js, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return os.WriteFile(filepath.Join(outDir, "analysis.json"), js, 0o644)
}

// parsePolygon reads "x,y x,y ..." in percent
func parsePolygon(s string) (types.Polygon, error) {
	var polygon types.Polygon
	for _, pair := range strings.Fields(s) {
		xs, ys, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q, want x,y", pair)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x in %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y in %q: %w", pair, err)
		}
		polygon = append(polygon, types.Point{X: x, Y: y})
	}
	return polygon, nil
}

func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

func logWritten(logger *slog.Logger, path string) {
	attrs := []any{"path", path}
	if info, err := os.Stat(path); err == nil {
		attrs = append(attrs, "size", utils.FormatFileSize(info.Size()))
	}
	logger.Info("wrote", attrs...)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package pvmat

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

//go:embed html_templates/session_report.html
var sessionReportTemplate string

// SessionReport is the complete payload for one annotation session's HTML
// report: footage facts, calibration, every measurement line, and the
// tracking outcome when a run completed.
type SessionReport struct {
	Title        string             `json:"title"`
	GeneratedAt  string             `json:"generated_at"`
	FrameCount   int                `json:"frame_count"`
	FPS          float64            `json:"fps"`
	DisplaySize  string             `json:"display_size"`
	Calibrated   bool               `json:"calibrated"`
	Units        string             `json:"units"`
	Ratio        string             `json:"ratio"`
	Measurements []MeasurementEntry `json:"measurements"`
	Tracking     *TrackingReport    `json:"tracking,omitempty"`
	KeyFrames    []KeyFrameEntry    `json:"key_frames"`
}

// MeasurementEntry is one measurement line: its raw pixel length and its
// calibrated distance, both preformatted for display.
type MeasurementEntry struct {
	Index    int    `json:"index"`
	Pixels   string `json:"pixels"`
	Distance string `json:"distance"`
}

// TrackingReport summarizes one tracking session. FirstFailure is 1-based
// with 0 meaning every frame succeeded. Velocity statistics cover the
// interior frames the tracker followed; they are absent when the session is
// uncalibrated or too short to yield them.
type TrackingReport struct {
	SessionID    string       `json:"session_id"`
	Frames       int          `json:"frames"`
	Failures     int          `json:"failures"`
	FirstFailure int          `json:"first_failure"`
	PathPoints   int          `json:"path_points"`
	VelocityUnit string       `json:"velocity_unit"`
	HasStats     bool         `json:"has_stats"`
	MeanVelocity string       `json:"mean_velocity"`
	MaxVelocity  string       `json:"max_velocity"`
	StdDev       string       `json:"std_dev"`
	ChartURL     template.URL `json:"chart_url"` // Base64 encoded data URL for embedding
}

// KeyFrameEntry is one annotated frame rendered into the report.
type KeyFrameEntry struct {
	Frame   int          `json:"frame"`
	DataURL template.URL `json:"data_url"` // Base64 encoded data URL for embedding
}

// ReportGenerator creates visual session reports
type ReportGenerator struct {
	outputDir     string
	templateCache map[string]*template.Template
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(outputDir string) *ReportGenerator {
	return &ReportGenerator{
		outputDir:     outputDir,
		templateCache: make(map[string]*template.Template),
	}
}

// Generate writes the HTML report to outputDir/index.html
func (g *ReportGenerator) Generate(report SessionReport) error {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := g.writeMeta(report); err != nil {
		return err
	}

	reportPath := filepath.Join(g.outputDir, "index.html")
	file, err := os.Create(reportPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return g.getTemplate().Execute(file, report)
}

// writeMeta drops a compact sidecar next to the page so dashboards can index
// sessions without parsing HTML.
func (g *ReportGenerator) writeMeta(report SessionReport) error {
	raw, err := json.MarshalIndent(metaFor(report), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(g.outputDir, "session.json"), raw, 0644)
}

// getTemplate returns the HTML template for session reports
func (g *ReportGenerator) getTemplate() *template.Template {
	if tmpl, exists := g.templateCache["session"]; exists {
		return tmpl
	}

	tmpl := template.Must(template.New("session").Parse(sessionReportTemplate))
	g.templateCache["session"] = tmpl
	return tmpl
}

// ReportInput bundles the state a report is built from. The interactive
// path fills it from the live application; batch callers assemble it from
// the components they drove directly. KeyFrameIndices overrides which frames
// are rendered into the report; nil selects first, middle, and last frame of
// the session, falling back to Frame alone when no session exists.
type ReportInput struct {
	Footage         *Footage
	Renderer        *Renderer
	Scene           *Scene
	Calibration     *Calibration
	Calibrating     bool
	Session         *Session
	Frame           int
	PathColor       color.RGBA
	VelocityUnit    VelocityUnit
	KeyFrameIndices []int
}

// BuildSessionReport assembles the report payload from live annotation
// state. Frames are quoted 1-based throughout.
func BuildSessionReport(a *App, title string) SessionReport {
	return BuildReport(a.reportInput(), title)
}

func (a *App) reportInput() ReportInput {
	return ReportInput{
		Footage:      a.footage,
		Renderer:     a.renderer,
		Scene:        a.scene,
		Calibration:  &a.calib,
		Calibrating:  a.tools.Calibrating(),
		Session:      a.session,
		Frame:        a.frame,
		PathColor:    a.pathColor,
		VelocityUnit: a.velocityUnit,
	}
}

// BuildReport assembles the report payload from explicit components.
func BuildReport(in ReportInput, title string) SessionReport {
	w, h := in.Renderer.Size()

	report := SessionReport{
		Title:       title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		FrameCount:  len(in.Footage.Frames),
		FPS:         in.Footage.FPS,
		DisplaySize: fmt.Sprintf("%dx%d", w, h),
		Calibrated:  in.Calibration.Calibrated(),
		Units:       in.Calibration.Units().String(),
	}
	if report.Calibrated {
		report.Ratio = fmt.Sprintf("%.4f %s/px", in.Calibration.Ratio(), basisAbbrev(in.Calibration.Units()))
	}

	idx := 0
	in.Scene.Each(func(id LineID, ln *Line) {
		idx++
		report.Measurements = append(report.Measurements, MeasurementEntry{
			Index:    idx,
			Pixels:   FormatDistance(ln.PixelLen, Pixels),
			Distance: in.Calibration.DistanceText(ln.PixelLen, in.Calibrating),
		})
	})

	if in.Session != nil {
		report.Tracking = buildTrackingReport(in)
	}
	report.KeyFrames = buildKeyFrames(in)

	return report
}

// buildTrackingReport derives the tracking summary, velocity statistics, and
// the embedded velocity chart from the finished session.
func buildTrackingReport(in ReportInput) *TrackingReport {
	s := in.Session
	n := s.Frames()

	tr := &TrackingReport{
		SessionID:    s.ID.String(),
		Frames:       n,
		Failures:     s.FailureCount(),
		FirstFailure: s.FirstFailure + 1,
		PathPoints:   s.PathLen(n - 1),
		VelocityUnit: in.VelocityUnit.String(),
	}

	factor := in.Calibration.VelocityDisplayFactor(in.VelocityUnit)
	if factor <= 0 || len(s.Velocities) != n {
		return tr
	}

	var xs, ys []float64
	for i := 1; i < n-1; i++ {
		if s.Failed[i] {
			continue
		}
		xs = append(xs, float64(i+1))
		ys = append(ys, s.Velocities[i]*factor)
	}
	if len(ys) < 2 {
		return tr
	}

	tr.HasStats = true
	tr.MeanVelocity = FormatVelocity(stat.Mean(ys, nil), in.VelocityUnit)
	tr.MaxVelocity = FormatVelocity(floats.Max(ys), in.VelocityUnit)
	tr.StdDev = FormatVelocity(stat.StdDev(ys, nil), in.VelocityUnit)

	if url, err := velocityChartDataURL(xs, ys, in.VelocityUnit); err == nil {
		tr.ChartURL = url
	}

	return tr
}

// buildKeyFrames renders the annotated frames embedded in the report.
func buildKeyFrames(in ReportInput) []KeyFrameEntry {
	frames := in.KeyFrameIndices
	if frames == nil {
		frames = []int{in.Frame}
		if in.Session != nil {
			n := in.Session.Frames()
			frames = dedupFrames([]int{0, n / 2, n - 1})
		}
	}

	var entries []KeyFrameEntry
	for _, i := range frames {
		st := DrawState{
			Frame:        i,
			Scene:        in.Scene,
			Calibration:  in.Calibration,
			Calibrating:  in.Calibrating,
			Session:      in.Session,
			PathColor:    in.PathColor,
			VelocityUnit: in.VelocityUnit,
		}
		url, err := imageDataURL(in.Renderer.Frame(st))
		if err != nil {
			continue
		}
		entries = append(entries, KeyFrameEntry{Frame: i + 1, DataURL: url})
	}
	return entries
}

func dedupFrames(frames []int) []int {
	var out []int
	for _, f := range frames {
		if len(out) == 0 || out[len(out)-1] != f {
			out = append(out, f)
		}
	}
	return out
}

// velocityChartDataURL renders the velocity-over-frames chart to an inline
// PNG data URL.
func velocityChartDataURL(xs, ys []float64, unit VelocityUnit) (template.URL, error) {
	graph := chart.Chart{
		Width:  720,
		Height: 320,
		XAxis:  chart.XAxis{Name: "frame"},
		YAxis:  chart.YAxis{Name: unit.String()},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "velocity",
				XValues: xs,
				YValues: ys,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("failed to render velocity chart: %w", err)
	}
	return encodeDataURL(buf.Bytes(), "image/png"), nil
}

// imageDataURL encodes an image as a base64 PNG data URL for embedding
func imageDataURL(img image.Image) (template.URL, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return encodeDataURL(buf.Bytes(), "image/png"), nil
}

func encodeDataURL(data []byte, mimeType string) template.URL {
	return template.URL(fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)))
}

func basisAbbrev(units UnitSystem) string {
	if units == Imperial {
		return "in"
	}
	return "m"
}

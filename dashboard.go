package pvmat

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"
)

//go:embed html_templates/dashboard.html
var dashboardTemplate string

// sessionMeta is the compact sidecar written next to each report page, so
// a dashboard can index sessions without parsing their HTML.
type sessionMeta struct {
	Title        string `json:"title"`
	GeneratedAt  string `json:"generated_at"`
	FrameCount   int    `json:"frame_count"`
	Calibrated   bool   `json:"calibrated"`
	Units        string `json:"units"`
	Measurements int    `json:"measurements"`
	Tracked      bool   `json:"tracked"`
	Failures     int    `json:"failures"`
}

func metaFor(report SessionReport) sessionMeta {
	m := sessionMeta{
		Title:        report.Title,
		GeneratedAt:  report.GeneratedAt,
		FrameCount:   report.FrameCount,
		Calibrated:   report.Calibrated,
		Units:        report.Units,
		Measurements: len(report.Measurements),
	}
	if report.Tracking != nil {
		m.Tracked = true
		m.Failures = report.Tracking.Failures
	}
	return m
}

// DashboardEntry is one indexed session on the dashboard page.
type DashboardEntry struct {
	Title        string
	GeneratedAt  string
	FrameCount   int
	Calibrated   bool
	Units        string
	Measurements int
	Tracked      bool
	Failures     int
	Path         string // report page, relative to the dashboard
}

type dashboardData struct {
	GeneratedAt string
	Entries     []DashboardEntry
}

// GenerateDashboard scans baseDir's immediate subdirectories for session
// report sidecars and writes baseDir/dashboard.html linking every report,
// newest first.
func GenerateDashboard(baseDir string) error {
	entries, err := scanSessions(baseDir)
	if err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(baseDir, "dashboard.html"))
	if err != nil {
		return err
	}
	defer file.Close()

	tmpl := template.Must(template.New("dashboard").Parse(dashboardTemplate))
	return tmpl.Execute(file, dashboardData{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Entries:     entries,
	})
}

// scanSessions collects the sidecars one directory level down. A directory
// without a parseable sidecar is skipped rather than an error; a run may
// still be writing its report.
func scanSessions(baseDir string) ([]DashboardEntry, error) {
	dirs, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cannot scan report directory: %w", err)
	}

	var entries []DashboardEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(baseDir, d.Name(), "session.json"))
		if err != nil {
			continue
		}
		var meta sessionMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		entries = append(entries, DashboardEntry{
			Title:        meta.Title,
			GeneratedAt:  meta.GeneratedAt,
			FrameCount:   meta.FrameCount,
			Calibrated:   meta.Calibrated,
			Units:        meta.Units,
			Measurements: meta.Measurements,
			Tracked:      meta.Tracked,
			Failures:     meta.Failures,
			Path:         d.Name() + "/index.html",
		})
	}

	// The timestamp format sorts lexicographically; path breaks ties.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].GeneratedAt != entries[j].GeneratedAt {
			return entries[i].GeneratedAt > entries[j].GeneratedAt
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

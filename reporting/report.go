package reporting

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	RunDirectoryPrefix = "deflake-"
	JSONReportFilename = "report.json"
	HTMLReportFilename = "report.html"
	htmlTemplateName   = "report.html.tmpl"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// Recommendation is the verdict for a single test.
type Recommendation string

const (
	RecommendationStable  Recommendation = "STABLE"  // every attempt passed
	RecommendationFlaky   Recommendation = "FLAKY"   // passes and failures
	RecommendationFailing Recommendation = "FAILING" // every attempt failed
	RecommendationNotRun  Recommendation = "NOT_RUN"
)

// Recommend derives the verdict from a test's statistics.
func Recommend(s types.Statistics) Recommendation {
	switch {
	case s.Attempts == 0:
		return RecommendationNotRun
	case s.Passes == s.Attempts:
		return RecommendationStable
	case s.Passes == 0:
		return RecommendationFailing
	default:
		return RecommendationFlaky
	}
}

// TestReport summarizes one selected test.
type TestReport struct {
	Name           string           `json:"name"`
	Variant        string           `json:"variant,omitempty"`
	Statistics     types.Statistics `json:"statistics"`
	SuccessRate    float64          `json:"success_rate"`
	Recommendation Recommendation   `json:"recommendation"`
}

// FailureGroupReport is a FailureGroup without the captured output.
type FailureGroupReport struct {
	Key   string            `json:"key"`
	Count int               `json:"count"`
	Test  string            `json:"test"`
	Kind  types.OutcomeKind `json:"kind"`
}

// SessionReport is the persisted summary of a finalized session.
type SessionReport struct {
	SessionID      string               `json:"session_id"`
	BinaryPath     string               `json:"binary_path"`
	Status         types.SessionStatus  `json:"status"`
	StartedAt      time.Time            `json:"started_at"`
	EndedAt        time.Time            `json:"ended_at"`
	Duration       time.Duration        `json:"duration"`
	DurationBudget time.Duration        `json:"duration_budget"`
	Workers        int                  `json:"workers"`
	Overall        types.Statistics     `json:"overall"`
	Tests          []TestReport         `json:"tests"`
	FailureGroups  []FailureGroupReport `json:"failure_groups,omitempty"`
}

// FlakyTests returns the names of tests with a FLAKY verdict.
func (r *SessionReport) FlakyTests() []string {
	var out []string
	for _, t := range r.Tests {
		if t.Recommendation == RecommendationFlaky {
			out = append(out, t.Name)
		}
	}
	return out
}

// BuildReport summarizes a finalized session. Tests are listed in selection
// order.
func BuildReport(session *types.RunSession, stats types.SessionStatistics) *SessionReport {
	r := &SessionReport{
		SessionID:      session.ID,
		BinaryPath:     session.BinaryPath,
		Status:         session.Status(),
		StartedAt:      session.StartedAt(),
		EndedAt:        session.EndedAt(),
		Duration:       session.Duration(),
		DurationBudget: session.Request.DurationBudget,
		Workers:        session.Request.WorkerCount,
		Overall:        stats.Overall,
	}
	for _, id := range session.Request.Selected {
		s := stats.PerTest[id.QualifiedName()]
		r.Tests = append(r.Tests, TestReport{
			Name:           id.QualifiedName(),
			Variant:        id.Variant,
			Statistics:     s,
			SuccessRate:    s.SuccessRate(),
			Recommendation: Recommend(s),
		})
	}
	for _, g := range GroupFailures(session.Failures()) {
		r.FailureGroups = append(r.FailureGroups, FailureGroupReport{
			Key:   g.Key,
			Count: g.Count,
			Test:  g.First.Identity.QualifiedName(),
			Kind:  g.First.Kind,
		})
	}
	return r
}

// RenderJSON encodes the report with indentation.
func RenderJSON(r *SessionReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderHTML renders the report with the embedded template.
func RenderHTML(r *SessionReport) ([]byte, error) {
	tmpl, err := template.New(htmlTemplateName).Funcs(template.FuncMap{
		"formatDuration": FormatDuration,
		"percent":        FormatPercent,
		"cssClass":       func(r Recommendation) string { return strings.ToLower(string(r)) },
	}).ParseFS(templateFS, "templates/"+htmlTemplateName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteReport writes the JSON and HTML reports into a per-session directory
// under baseDir and returns that directory.
func WriteReport(baseDir string, r *SessionReport) (string, error) {
	if baseDir == "" {
		return "", fmt.Errorf("report directory cannot be empty")
	}
	dir := filepath.Join(baseDir, RunDirectoryPrefix+r.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	jsonData, err := RenderJSON(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, JSONReportFilename), jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON report: %w", err)
	}
	htmlData, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, HTMLReportFilename), htmlData, 0644); err != nil {
		return "", fmt.Errorf("failed to write HTML report: %w", err)
	}
	return dir, nil
}

package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImportFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadIndicatorInputsYAML(t *testing.T) {
	path := writeImportFile(t, "indicators.yaml", `
- type: ip
  value: 203.0.113.10
  confidence: 0.9
  source_feeds: [feed-a]
- id: ind-2
  type: domain
  value: evil.example.com
  confidence: 0.4
`)

	inputs, err := loadIndicatorInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Empty(t, inputs[0].ID)
	assert.Equal(t, "ip", inputs[0].Type)
	assert.Equal(t, "203.0.113.10", inputs[0].Value)
	assert.Equal(t, 0.9, inputs[0].Confidence)

	assert.Equal(t, "ind-2", inputs[1].ID)
	assert.Equal(t, "domain", inputs[1].Type)
}

func TestLoadIndicatorInputsJSON(t *testing.T) {
	path := writeImportFile(t, "indicators.json",
		`[{"type":"hash","value":"deadbeef","confidence":0.75}]`)

	inputs, err := loadIndicatorInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "hash", inputs[0].Type)
}

func TestLoadIndicatorInputsRejectsUnknownType(t *testing.T) {
	path := writeImportFile(t, "bad.yaml", `
- type: registry-key
  value: HKLM\Software\Bad
  confidence: 0.5
`)

	_, err := loadIndicatorInputs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
}

func TestLoadIndicatorInputsRejectsMissingValue(t *testing.T) {
	path := writeImportFile(t, "bad.yaml", `
- type: ip
  confidence: 0.5
`)

	_, err := loadIndicatorInputs(path)
	require.Error(t, err)
}

func TestLoadIndicatorInputsRejectsOutOfRangeConfidence(t *testing.T) {
	path := writeImportFile(t, "bad.yaml", `
- type: ip
  value: 203.0.113.10
  confidence: 1.5
`)

	_, err := loadIndicatorInputs(path)
	require.Error(t, err)
}

func TestLoadIndicatorInputsMissingFile(t *testing.T) {
	_, err := loadIndicatorInputs(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestIndicatorInputDefaults(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	in := indicatorInput{Type: "url", Value: "http://evil.example.com/a", Confidence: 0.6}
	ind := in.toIndicator(now)

	assert.NotEmpty(t, ind.ID, "missing ID gets generated")
	assert.Equal(t, now, ind.FirstSeen)
	assert.Equal(t, now, ind.LastSeen)
	require.NoError(t, ind.Validate())

	seen := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	in2 := indicatorInput{ID: "ind-9", Type: "url", Value: "http://x", Confidence: 0.6, FirstSeen: &seen, LastSeen: &seen}
	ind2 := in2.toIndicator(now)
	assert.Equal(t, "ind-9", ind2.ID)
	assert.Equal(t, seen, ind2.FirstSeen)
}

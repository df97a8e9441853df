// Package core contains the domain types shared across pyrothor: detection
// rules, rule metadata, threat intel indicators and scan reports.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Severity classifies how dangerous a matched rule is considered.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a severity string. Unknown values are rejected.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("invalid severity: %q", s)
	}
}

// Rule represents a YARA detection rule with provenance and taxonomy metadata.
// Rules are keyed by ID; re-inserting under the same ID replaces the previous
// version (last write wins).
type Rule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Content         string    `json:"content"`
	Author          string    `json:"author,omitempty"`
	Description     string    `json:"description,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Severity        Severity  `json:"severity"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         string    `json:"version"`
	ContentHash     string    `json:"content_hash"`
	Source          string    `json:"source,omitempty"`
	MitreTactics    []string  `json:"mitre_tactics,omitempty"`
	MitreTechniques []string  `json:"mitre_techniques,omitempty"`
	ThreatActors    []string  `json:"threat_actors,omitempty"`
	MalwareFamilies []string  `json:"malware_families,omitempty"`
}

// Validate checks structural invariants before a rule is persisted.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return err
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return fmt.Errorf("rule %s: updated_at precedes created_at", r.ID)
	}
	return nil
}

// HashContent computes the content digest recorded in Rule.ContentHash.
// The hash is an integrity contract established at import time; the store
// does not re-verify it.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

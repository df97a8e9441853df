package core

import (
	"fmt"
	"math"
	"time"
)

// IndicatorType enumerates the kinds of threat intel observables the store
// accepts.
type IndicatorType string

const (
	IndicatorTypeIP       IndicatorType = "ip"
	IndicatorTypeCIDR     IndicatorType = "cidr"
	IndicatorTypeDomain   IndicatorType = "domain"
	IndicatorTypeHash     IndicatorType = "hash"
	IndicatorTypeURL      IndicatorType = "url"
	IndicatorTypeEmail    IndicatorType = "email"
	IndicatorTypeFilename IndicatorType = "filename"
)

var validIndicatorTypes = map[IndicatorType]bool{
	IndicatorTypeIP:       true,
	IndicatorTypeCIDR:     true,
	IndicatorTypeDomain:   true,
	IndicatorTypeHash:     true,
	IndicatorTypeURL:      true,
	IndicatorTypeEmail:    true,
	IndicatorTypeFilename: true,
}

// Indicator is a threat intelligence observable with confidence and
// freshness attributes. Indicators are keyed by ID and replaced on
// re-insertion; stale indicators are removed in bulk by age of LastSeen.
type Indicator struct {
	ID            string        `json:"id"`
	Type          IndicatorType `json:"indicator_type"`
	Value         string        `json:"value"`
	Confidence    float64       `json:"confidence"`
	ThreatScore   float64       `json:"threat_score"`
	FirstSeen     time.Time     `json:"first_seen"`
	LastSeen      time.Time     `json:"last_seen"`
	SourceFeeds   []string      `json:"source_feeds,omitempty"`
	Campaigns     []string      `json:"associated_campaigns,omitempty"`
	MitreMapping  []string      `json:"mitre_mapping,omitempty"`

	// QuantumResistant is carried for feed compatibility; scanning never
	// consults it.
	QuantumResistant bool `json:"quantum_resistant"`
}

// Validate checks structural invariants before an indicator is persisted.
// Confidence must be a comparable float: NaN and infinities would make the
// confidence ranking order undefined, so they are rejected here instead of
// surfacing as a fault during sort.
func (i *Indicator) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("indicator ID is required")
	}
	if !validIndicatorTypes[i.Type] {
		return fmt.Errorf("invalid indicator type: %q", i.Type)
	}
	if i.Value == "" {
		return fmt.Errorf("indicator value is required")
	}
	if math.IsNaN(i.Confidence) || math.IsInf(i.Confidence, 0) {
		return fmt.Errorf("indicator %s: confidence is not a finite number", i.ID)
	}
	if i.LastSeen.Before(i.FirstSeen) {
		return fmt.Errorf("indicator %s: last_seen precedes first_seen", i.ID)
	}
	return nil
}

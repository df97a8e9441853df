package core

import "time"

// RuleMetadata tracks operational quality signals for a rule. It is soft
// linked to a Rule by RuleID only: metadata may exist without a matching rule
// and is always written independently of the rule record itself.
type RuleMetadata struct {
	RuleID              string     `json:"rule_id"`
	PerformanceScore    float64    `json:"performance_score"`
	FalsePositiveRate   float64    `json:"false_positive_rate"`
	DetectionCount      uint64     `json:"detection_count"`
	LastDetection       *time.Time `json:"last_detection,omitempty"`
	EffectivenessRating string     `json:"effectiveness_rating,omitempty"`

	// Confidence and relevance follow the [0,1] convention used elsewhere in
	// the store; the convention is not enforced for metadata.
	ConfidenceScore float64 `json:"confidence_score"`
	RelevanceScore  float64 `json:"relevance_score"`
}

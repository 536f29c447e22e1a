// Package sla maps request latency to an instantaneous compliance score.
package sla

import "github.com/upb/inference-observe/internal/classify"

// DefaultCompliance applies to service types without a threshold entry.
const DefaultCompliance = 99.0

// Threshold is a two-tier rule: Good below Cutoff seconds, Degraded otherwise.
type Threshold struct {
	Cutoff   float64
	Good     float64
	Degraded float64
}

// DefaultThresholds is the fixed per-service table.
var DefaultThresholds = map[classify.ServiceType]Threshold{
	classify.LLM:         {Cutoff: 2.0, Good: 99.5, Degraded: 95.0},
	classify.TTS:         {Cutoff: 1.0, Good: 99.8, Degraded: 97.0},
	classify.Translation: {Cutoff: 0.5, Good: 99.9, Degraded: 98.0},
}

// Estimator is a read-only lookup table.
type Estimator struct {
	thresholds map[classify.ServiceType]Threshold
	fallback   float64
}

// NewEstimator returns an Estimator over DefaultThresholds.
func NewEstimator() *Estimator {
	return &Estimator{thresholds: DefaultThresholds, fallback: DefaultCompliance}
}

// Compliance returns the percentage for one request.
func (e *Estimator) Compliance(service classify.ServiceType, seconds float64) float64 {
	t, ok := e.thresholds[service]
	if !ok {
		return e.fallback
	}
	if seconds < t.Cutoff {
		return t.Good
	}
	return t.Degraded
}

// SLAType is the sla_type label value for a service.
func SLAType(service classify.ServiceType) string {
	return service.String() + "_availability"
}

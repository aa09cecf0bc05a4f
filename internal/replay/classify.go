// internal/replay/classify.go
package replay

import (
	"fmt"

	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/oracle"
)

// Classify decides whether a prediction raises an alert and at which severity.
// Only a defect label with confidence above the alert threshold alerts.
func (c Config) Classify(p oracle.Prediction) (bool, string) {
	if p.Label != c.Polarity.DefectValue || p.Confidence <= c.AlertThreshold {
		return false, ""
	}
	switch {
	case p.Confidence > c.HighThreshold:
		return true, domain.SeverityHigh
	case p.Confidence > c.MediumThreshold:
		return true, domain.SeverityMedium
	default:
		return true, domain.SeverityLow
	}
}

// AlertMessage is the human-readable text attached to an alert
func AlertMessage(confidence float64) string {
	return fmt.Sprintf("Quality issue detected with %.1f%% confidence", confidence*100)
}

// score folds one prediction into the running aggregates
func (c Config) score(p *domain.Progress, predicted int, truth *int, alert bool) {
	p.PredictionsCount++
	if alert {
		p.AlertsCount++
	}
	if truth == nil {
		return
	}

	p.LabeledCount++
	if predicted == *truth {
		p.CorrectCount++
	}

	defect := c.Polarity.DefectValue
	switch {
	case predicted == defect && *truth == defect:
		p.TruePositives++
	case predicted == defect:
		p.FalsePositives++
	case *truth == defect:
		p.FalseNegatives++
	default:
		p.TrueNegatives++
	}
	p.QualityScore = float64(p.CorrectCount) / float64(p.LabeledCount) * 100
}

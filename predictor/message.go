package predictor

const (
	HighRiskMessage  = "The patient has high risk of heart disease"
	NotAtRiskMessage = "The patient is not at risk of heart disease"
)

// HighRiskLabel is the classifier output meaning heart disease is likely.
const HighRiskLabel = 1

// RiskMessage maps a predicted label to the text shown to the user. Only
// label 1 is high risk; every other label reads as not at risk.
func RiskMessage(label int) string {
	if label == HighRiskLabel {
		return HighRiskMessage
	}
	return NotAtRiskMessage
}

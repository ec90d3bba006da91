package domain

// RiskAction is the trust decision for an asset.
type RiskAction string

const (
	ActionAllow RiskAction = "ALLOW"
	ActionScale RiskAction = "SCALE"
	ActionBlock RiskAction = "BLOCK"
)

// String returns the string representation of RiskAction.
func (a RiskAction) String() string {
	return string(a)
}

// IsValid checks if the action is a valid value.
func (a RiskAction) IsValid() bool {
	return a == ActionAllow || a == ActionScale || a == ActionBlock
}

// Code returns the wire code of the action (0 ALLOW, 1 SCALE, 2 BLOCK).
func (a RiskAction) Code() uint8 {
	switch a {
	case ActionScale:
		return 1
	case ActionBlock:
		return 2
	default:
		return 0
	}
}

// RiskActionFromCode maps a wire code back to RiskAction.
func RiskActionFromCode(code uint8) (RiskAction, bool) {
	switch code {
	case 0:
		return ActionAllow, true
	case 1:
		return ActionScale, true
	case 2:
		return ActionBlock, true
	}
	return "", false
}

// Severity grades a risk factor.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	return string(s)
}

// RiskFactor is one evaluated signal contributing to a decision.
type RiskFactor struct {
	Name      string
	Value     float64
	Threshold float64
	Impact    float64 // signed contribution; negative raises the risk score
	Triggered bool    // hard constraint violated
	Severity  Severity
}

// RiskDecision is the evaluator output for one sample.
type RiskDecision struct {
	AssetID        string
	Action         RiskAction
	SizeMultiplier float64 // [0, 1], 0 when Action is BLOCK
	RiskScore      float64 // [0, 100], higher is riskier
	Factors        []RiskFactor
	Explanation    string
	Timestamp      int64
	Source         SourceTag
	Metrics        OracleMetrics // inputs snapshot
}

// TriggeredFactors returns the factors that violated a hard constraint.
func (d *RiskDecision) TriggeredFactors() []RiskFactor {
	var out []RiskFactor
	for _, f := range d.Factors {
		if f.Triggered {
			out = append(out, f)
		}
	}
	return out
}

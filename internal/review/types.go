package review

// Unknown is the placeholder shown for any metric that cannot be derived.
const Unknown = "unknown"

// QualityReport is the typed view of the quality stage output.
type QualityReport struct {
	CriticalIssues []string `json:"critical_issues"`
	MinorIssues    []string `json:"minor_issues"`
	Reasoning      string   `json:"reasoning"`
}

// Vulnerability is one security finding. RiskLevel is the text the agent
// reported and may be empty.
type Vulnerability struct {
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
}

// Tier classifies the vulnerability's risk level.
func (v Vulnerability) Tier() Tier {
	return ClassifySeverity(v.RiskLevel)
}

// SecurityReport is the typed view of the security stage output.
type SecurityReport struct {
	Vulnerabilities []Vulnerability `json:"security_vulnerabilities"`
	Blocking        bool            `json:"blocking"`
	HighestRisk     string          `json:"highest_risk"`
	Recommendations []string        `json:"security_recommendations"`
}

// Interpretation bundles everything derived from one completed run.
type Interpretation struct {
	Quality      Parsed          `json:"-"`
	Security     Parsed          `json:"-"`
	QualityView  *QualityReport  `json:"quality,omitempty"`
	SecurityView *SecurityReport `json:"security,omitempty"`
	Summary      Summary         `json:"summary"`
	Disposition  Disposition     `json:"disposition"`
}

// Interpret parses the two reviewer outputs, derives the summary metrics and
// detects the disposition stated in the decision text. It never fails.
func Interpret(quality, security, decision string) Interpretation {
	in := Interpretation{
		Quality:     Parse(quality),
		Security:    Parse(security),
		Disposition: DetectDisposition(decision),
	}
	in.Summary = Summarize(in.Quality, in.Security)
	if q, ok := DecodeQuality(in.Quality); ok {
		in.QualityView = &q
	}
	if s, ok := DecodeSecurity(in.Security); ok {
		in.SecurityView = &s
	}
	return in
}

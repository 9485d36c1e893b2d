package review

// DecodeQuality builds the typed quality view. It reports false when the
// output is not a JSON object. List items that are not strings are rendered
// as JSON text.
func DecodeQuality(p Parsed) (QualityReport, bool) {
	obj, ok := p.Object()
	if !ok {
		return QualityReport{}, false
	}
	return QualityReport{
		CriticalIssues: stringList(obj["critical_issues"]),
		MinorIssues:    stringList(obj["minor_issues"]),
		Reasoning:      optString(obj["reasoning"]),
	}, true
}

// DecodeSecurity builds the typed security view. Each vulnerability's risk
// level is read from "risk_level", then "severity"; its description from
// "description", then "issue", then the item's JSON text.
func DecodeSecurity(p Parsed) (SecurityReport, bool) {
	obj, ok := p.Object()
	if !ok {
		return SecurityReport{}, false
	}
	r := SecurityReport{
		Blocking:        truthy(obj["blocking"]),
		HighestRisk:     optString(obj["highest_risk"]),
		Recommendations: stringList(obj["security_recommendations"]),
	}
	items, _ := obj["security_vulnerabilities"].([]any)
	for _, item := range items {
		r.Vulnerabilities = append(r.Vulnerabilities, decodeVulnerability(item))
	}
	return r, true
}

func decodeVulnerability(item any) Vulnerability {
	m, ok := item.(map[string]any)
	if !ok {
		return Vulnerability{Description: stringify(item)}
	}
	v := Vulnerability{RiskLevel: firstString(m, "risk_level", "severity")}
	v.Description = firstString(m, "description", "issue")
	if v.Description == "" {
		v.Description = stringify(m)
	}
	return v
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return stringify(v)
		}
	}
	return ""
}

func optString(v any) string {
	if v == nil {
		return ""
	}
	return stringify(v)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringify(item))
	}
	return out
}

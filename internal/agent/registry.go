package agent

import (
	"strings"

	"github.com/dshills/triad/internal/tools"
)

// Descriptor is an agent persona plus the tools it may use.
type Descriptor struct {
	Role      string
	Goal      string
	Backstory string
	Tools     []tools.Tool
}

// SystemPrompt renders the persona as a system message.
func (d Descriptor) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are " + d.Role + ".\n\n")
	b.WriteString(strings.TrimSpace(d.Backstory))
	b.WriteString("\n\nYour personal goal is: ")
	b.WriteString(strings.TrimSpace(d.Goal))
	return b.String()
}

// Tool returns the permitted tool with the given name.
func (d Descriptor) Tool(name string) (tools.Tool, bool) {
	for _, t := range d.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Registry holds the three review personas.
type Registry struct {
	SeniorDeveloper  Descriptor
	SecurityEngineer Descriptor
	TechLead         Descriptor
}

// NewRegistry builds the personas. Only the security engineer receives the
// search and scrape tools; nil tools are omitted.
func NewRegistry(search, scrape tools.Tool) Registry {
	var granted []tools.Tool
	for _, t := range []tools.Tool{search, scrape} {
		if t != nil {
			granted = append(granted, t)
		}
	}
	return Registry{
		SeniorDeveloper: Descriptor{
			Role:      "Senior Developer",
			Goal:      seniorDeveloperGoal,
			Backstory: seniorDeveloperBackstory,
		},
		SecurityEngineer: Descriptor{
			Role:      "Security Engineer",
			Goal:      securityEngineerGoal,
			Backstory: securityEngineerBackstory,
			Tools:     granted,
		},
		TechLead: Descriptor{
			Role:      "Tech Lead",
			Goal:      techLeadGoal,
			Backstory: techLeadBackstory,
		},
	}
}

// All lists the personas in declaration order.
func (r Registry) All() []Descriptor {
	return []Descriptor{r.SeniorDeveloper, r.SecurityEngineer, r.TechLead}
}

const seniorDeveloperGoal = `Evaluate code changes thoroughly and determine:
- Which issues are critical and must be fixed immediately
- Which issues are important but not blocking
- Which issues are minor improvements or stylistic suggestions
- Whether the code is ready for production

Prioritize correctness, security, performance, scalability, and maintainability
over minor style preferences.`

const seniorDeveloperBackstory = `You are a senior developer with 10+ years of experience designing
and maintaining production systems. You have reviewed hundreds of pull requests
across large-scale applications.

You are trusted to:
- Separate critical engineering risks from cosmetic nitpicks
- Justify why something must be fixed
- Provide actionable, precise feedback
- Think in terms of long-term maintainability and business impact

You evaluate code like a production owner: pragmatic, balanced, and decisive.`

const securityEngineerGoal = `Identify security vulnerabilities in code changes, assess their severity,
and determine production security readiness. Classify risks as Critical, High, Medium,
or Low and provide actionable remediation guidance.`

const securityEngineerBackstory = `You are a senior security engineer with extensive experience in
application security, penetration testing, and secure system design.
You analyze code from an attacker's perspective while balancing business impact
and real-world exploitability. You make decisive security judgments and
prioritize critical vulnerabilities over minor concerns.`

const techLeadGoal = `Manage and coordinate the code review process by determining the
appropriate approval path based on the scope and risk of changes.
Ensure all mandatory reviews are completed before approving merges.`

const techLeadBackstory = `You are an experienced engineering manager who specializes in
managing structured code review workflows. You evaluate the impact and risk of
changes and determine which stakeholders must approve them. You balance
development velocity with production safety and enforce proper governance standards.`

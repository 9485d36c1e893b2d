package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dshills/triad/internal/agent"
)

// Graph is the explicit dependency graph of review stages.
type Graph struct {
	stages []Stage
}

// NewGraph creates a graph from stages in declaration order. It does not
// validate; call Validate.
func NewGraph(stages ...Stage) *Graph {
	return &Graph{stages: slices.Clone(stages)}
}

// Build returns the review graph: quality and security as independent roots
// and decision depending on both.
func Build(reg agent.Registry) (*Graph, error) {
	g := NewGraph(
		Stage{
			Name:           StageQuality,
			Title:          "Analyze Code Quality",
			Instruction:    qualityInstruction,
			ExpectedOutput: qualityExpected,
			Agent:          reg.SeniorDeveloper,
		},
		Stage{
			Name:           StageSecurity,
			Title:          "Review Security",
			Instruction:    securityInstruction,
			ExpectedOutput: securityExpected,
			Agent:          reg.SecurityEngineer,
		},
		Stage{
			Name:           StageDecision,
			Title:          "Review Decision",
			Instruction:    decisionInstruction,
			ExpectedOutput: decisionExpected,
			Agent:          reg.TechLead,
			DependsOn:      []StageName{StageQuality, StageSecurity},
		},
	)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Stages returns the stages in declaration order.
func (g *Graph) Stages() []Stage {
	return slices.Clone(g.stages)
}

// Stage returns the named stage.
func (g *Graph) Stage(name StageName) (Stage, bool) {
	for _, s := range g.stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// ErrCycle is returned when stage dependencies form a cycle.
var ErrCycle = errors.New("stage dependencies contain a cycle")

// Validate checks the graph's structure and the review shape: the three
// stages exist, decision depends on exactly quality and security, and the
// two reviewers are independent of each other.
func (g *Graph) Validate() error {
	if _, err := g.Levels(); err != nil {
		return err
	}

	for _, name := range []StageName{StageQuality, StageSecurity, StageDecision} {
		if _, ok := g.Stage(name); !ok {
			return fmt.Errorf("missing stage %q", name)
		}
	}
	decision, _ := g.Stage(StageDecision)
	if !sameSet(decision.DependsOn, []StageName{StageQuality, StageSecurity}) {
		return fmt.Errorf("stage %q must depend on exactly %q and %q, got %v",
			StageDecision, StageQuality, StageSecurity, decision.DependsOn)
	}
	quality, _ := g.Stage(StageQuality)
	security, _ := g.Stage(StageSecurity)
	if slices.Contains(quality.DependsOn, StageSecurity) || slices.Contains(security.DependsOn, StageQuality) {
		return fmt.Errorf("stages %q and %q must not depend on each other", StageQuality, StageSecurity)
	}
	return nil
}

// Levels groups stages by dependency depth using Kahn's algorithm. Stages in
// one level have no dependency on each other. Within a level, declaration
// order is kept.
func (g *Graph) Levels() ([][]Stage, error) {
	index := make(map[StageName]int, len(g.stages))
	for i, s := range g.stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name)
		}
		index[s.Name] = i
	}

	indegree := make([]int, len(g.stages))
	dependents := make([][]int, len(g.stages))
	for i, s := range g.stages {
		seen := map[StageName]bool{}
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var levels [][]Stage
	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	placed := 0
	for len(ready) > 0 {
		slices.Sort(ready)
		level := make([]Stage, 0, len(ready))
		var next []int
		for _, i := range ready {
			level = append(level, g.stages[i])
			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		levels = append(levels, level)
		placed += len(ready)
		ready = next
	}
	if placed != len(g.stages) {
		return nil, ErrCycle
	}
	return levels, nil
}

func sameSet(a, b []StageName) bool {
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	as = slices.Compact(as)
	slices.Sort(bs)
	bs = slices.Compact(bs)
	return slices.Equal(as, bs)
}

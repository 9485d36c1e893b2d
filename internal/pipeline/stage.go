package pipeline

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/triad/internal/agent"
)

// StageName identifies a stage in the graph.
type StageName string

const (
	StageQuality  StageName = "quality"
	StageSecurity StageName = "security"
	StageDecision StageName = "decision"
)

// Request is the code change submitted for review.
type Request struct {
	Code   string
	Source string
}

// ErrEmptyRequest is returned when the submitted code is blank.
var ErrEmptyRequest = errors.New("review request has no code")

// Validate checks that the request carries code.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return ErrEmptyRequest
	}
	return nil
}

// Stage is one unit of work bound to one agent. Instruction is a
// text/template rendered with the Request.
type Stage struct {
	Name           StageName
	Title          string
	Instruction    string
	ExpectedOutput string
	Agent          agent.Descriptor
	DependsOn      []StageName
}

// StageResult is the raw output of a completed stage.
type StageResult struct {
	Stage      StageName     `json:"stage"`
	Agent      string        `json:"agent"`
	Raw        string        `json:"raw"`
	Duration   time.Duration `json:"duration_ns"`
	ToolCalls  int           `json:"tool_calls"`
	TokensUsed int           `json:"tokens_used"`
}

// Run is a completed review. It always holds one result per stage, in
// declaration order.
type Run struct {
	ID       string
	Request  Request
	Results  []StageResult
	Started  time.Time
	Finished time.Time
}

// Result returns the result of the named stage.
func (r *Run) Result(name StageName) (StageResult, bool) {
	for _, res := range r.Results {
		if res.Stage == name {
			return res, true
		}
	}
	return StageResult{}, false
}

// Raw returns the raw output of the named stage, or "".
func (r *Run) Raw(name StageName) string {
	res, _ := r.Result(name)
	return res.Raw
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a new ULID for a run.
func NewRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

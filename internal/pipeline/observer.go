package pipeline

// Observer is notified of execution progress. Root stages run concurrently,
// so implementations must be safe for concurrent use.
type Observer interface {
	StageStarted(runID string, stage Stage)
	StageFinished(runID string, result StageResult)
	StageFailed(runID string, stage Stage, err error)
	RunFailed(runID string, err error)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) StageStarted(string, Stage)        {}
func (NopObserver) StageFinished(string, StageResult) {}
func (NopObserver) StageFailed(string, Stage, error)  {}
func (NopObserver) RunFailed(string, error)           {}

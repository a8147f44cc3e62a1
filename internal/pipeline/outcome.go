package pipeline

// Outcome classifies how a stage ended.
type Outcome int

const (
	Success Outcome = iota
	Degraded
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// StageResult is returned by every stage.
type StageResult struct {
	Outcome Outcome
	Err     error
	Note    string
}

func succeeded() StageResult { return StageResult{Outcome: Success} }

func degraded(err error, note string) StageResult {
	return StageResult{Outcome: Degraded, Err: err, Note: note}
}

func fatal(err error) StageResult { return StageResult{Outcome: Fatal, Err: err} }

// StageWindow is the progress range a stage reports within.
type StageWindow struct {
	Start int
	End   int
}

// At returns the progress after done of total units.
func (w StageWindow) At(done, total int) int {
	if total <= 0 || done >= total {
		return w.End
	}
	if done <= 0 {
		return w.Start
	}
	return w.Start + done*(w.End-w.Start)/total
}

// Sprite pipeline windows.
var (
	windowBackgroundRemoval = StageWindow{Start: 0, End: 10}
	windowStyleTransfer     = StageWindow{Start: 10, End: 25}
	windowSpriteGeneration  = StageWindow{Start: 25, End: 80}
	windowSpritePacking     = StageWindow{Start: 80, End: 90}
	windowFinalize          = StageWindow{Start: 90, End: 100}
)

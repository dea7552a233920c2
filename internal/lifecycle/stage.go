package lifecycle

// Stage names one unit of pipeline work.
type Stage string

const (
	StageModeration Stage = "moderation"
	StageAnalysis   Stage = "analysis"
	StageCaptioning Stage = "captioning"
	StageValidation Stage = "validation"
	StagePublishing Stage = "publishing"
	StageAnalytics  Stage = "analytics"
)

var allStages = []Stage{
	StageModeration,
	StageAnalysis,
	StageCaptioning,
	StageValidation,
	StagePublishing,
	StageAnalytics,
}

// AllStages returns every stage in pipeline order.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// ActiveState is the state an item holds while the stage's jobs run.
// Analytics runs after publishing and has no active state.
func (s Stage) ActiveState() (State, bool) {
	switch s {
	case StageModeration:
		return StateModerating, true
	case StageAnalysis:
		return StateAnalyzing, true
	case StageCaptioning:
		return StateCaptioning, true
	case StageValidation:
		return StateValidating, true
	case StagePublishing:
		return StatePublishing, true
	case StageAnalytics:
		return "", false
	default:
		return "", false
	}
}


// StageFor returns the stage whose jobs run while an item is in state.
func StageFor(state State) (Stage, bool) {
	switch state {
	case StateModerating:
		return StageModeration, true
	case StateAnalyzing:
		return StageAnalysis, true
	case StateCaptioning:
		return StageCaptioning, true
	case StateValidating:
		return StageValidation, true
	case StatePublishing:
		return StagePublishing, true
	default:
		return "", false
	}
}

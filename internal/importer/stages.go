package importer

import (
	"errors"
	"fmt"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/catalog"
)

var (
	// ErrBackward means the target stage is not after the current one.
	ErrBackward = errors.New("stage already reached")
	// ErrTerminal means the video is complete or failed and only an
	// explicit retry can move it.
	ErrTerminal = errors.New("stage is terminal")
)

var stageOrder = map[catalog.Stage]int{
	catalog.StageCreated:  0,
	catalog.StageMetadata: 1,
	catalog.StageCaptions: 2,
	catalog.StageChapters: 3,
	catalog.StageComplete: 4,
}

var stageProgress = map[catalog.Stage]int{
	catalog.StageCreated:  0,
	catalog.StageMetadata: 25,
	catalog.StageCaptions: 60,
	catalog.StageChapters: 90,
	catalog.StageComplete: 100,
}

// Progress is the percentage shown for a success-path stage.
func Progress(stage catalog.Stage) int {
	return stageProgress[stage]
}

// Transition is a validated stage change.
type Transition struct {
	From     catalog.Stage
	To       catalog.Stage
	Progress int
}

// Next validates moving from current to target without side effects.
// Error is reachable from every stage and keeps the current progress;
// success stages must strictly increase.
func Next(current, target catalog.Stage, currentProgress int) (Transition, error) {
	if target == catalog.StageError {
		if current == catalog.StageError {
			return Transition{}, ErrBackward
		}
		return Transition{From: current, To: target, Progress: currentProgress}, nil
	}

	to, ok := stageOrder[target]
	if !ok {
		return Transition{}, fmt.Errorf("unknown stage %q", target)
	}
	if current == catalog.StageError || current == catalog.StageComplete {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrTerminal, current, target)
	}
	from, ok := stageOrder[current]
	if !ok {
		return Transition{}, fmt.Errorf("unknown stage %q", current)
	}
	if to <= from {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrBackward, current, target)
	}
	return Transition{From: current, To: target, Progress: stageProgress[target]}, nil
}

package executor

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cursus/internal/models"
)

// assembleParams builds the business callable's positional parameter list
// from the descriptor's wiring. Each spec's kind selects an already-resolved
// value for that position; an unknown kind is a registration bug and fails
// with the unwrapped ErrInvalidParamKind sentinel.
func assembleParams(desc *models.ActionDescriptor, ch *chain, args map[string]any, logger arbor.ILogger) ([]any, error) {
	if len(desc.Params) == 0 {
		return nil, nil
	}

	size := 0
	for _, spec := range desc.Params {
		if spec.Index < 0 {
			return nil, fmt.Errorf("action %s: negative param index %d", desc.Name, spec.Index)
		}
		if spec.Index+1 > size {
			size = spec.Index + 1
		}
	}

	params := make([]any, size)
	for _, spec := range desc.Params {
		switch spec.Kind {
		case models.ParamArgument:
			params[spec.Index] = args
		case models.ParamCourse:
			params[spec.Index] = ch.course
		case models.ParamPhase:
			params[spec.Index] = ch.phase
		case models.ParamTask:
			params[spec.Index] = ch.task
		case models.ParamLogger:
			params[spec.Index] = logger
		case models.ParamCourseInstance:
			params[spec.Index] = instanceValue(ch.courseInstance, ch.courseInstances)
		case models.ParamPhaseInstance:
			params[spec.Index] = instanceValue(ch.phaseInstance, ch.phaseInstances)
		case models.ParamTaskInstance:
			if ch.taskInstance != nil {
				params[spec.Index] = ch.taskInstance
			}
		default:
			return nil, fmt.Errorf("%q: %w", spec.Kind, models.ErrInvalidParamKind)
		}
	}

	return params, nil
}

// instanceValue picks the wired value for an instance kind: the single target
// instance at the executing level, a lone ancestor as a single pointer, or
// the whole set when merged instances resolved several ancestors.
func instanceValue[T any](single *T, set []*T) any {
	if single != nil {
		return single
	}
	switch len(set) {
	case 0:
		return nil
	case 1:
		return set[0]
	default:
		return set
	}
}

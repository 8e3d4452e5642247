package metadata

// Action is the outcome of the lock/clear/replace-mode decision for one
// field during a merge.
type Action int

const (
	// ActionSkip leaves the field untouched.
	ActionSkip Action = iota
	// ActionClear empties the field.
	ActionClear
	// ActionSet writes the candidate value.
	ActionSet
)

// DecideScalar applies the precedence rules for one scalar field: a lock
// beats everything, including a clear; a clear beats any supplied value;
// replace-all overwrites unconditionally (absent clears nullable fields);
// replace-missing only fills empty fields; the direct edit path overwrites
// whenever a valid value was supplied.
func DecideScalar(locked, cleared bool, mode ReplaceMode, hasCurrent, candidateValid, nullable bool) Action {
	if locked {
		return ActionSkip
	}
	if cleared {
		if !hasCurrent {
			return ActionSkip
		}
		return ActionClear
	}

	switch mode {
	case ReplaceModeAll:
		if candidateValid {
			return ActionSet
		}
		if nullable && hasCurrent {
			return ActionClear
		}
		return ActionSkip
	case ReplaceModeMissing:
		if hasCurrent || !candidateValid {
			return ActionSkip
		}
		return ActionSet
	default:
		if candidateValid {
			return ActionSet
		}
		return ActionSkip
	}
}

// DecideSet applies the same precedence rules for one multi-valued field.
// merge=true unions candidate values into the existing set; merge=false
// replaces it. Replace-missing only applies when the existing set is empty.
func DecideSet(locked, cleared bool, mode ReplaceMode, currentEmpty, candidateSupplied bool) Action {
	if locked {
		return ActionSkip
	}
	if cleared {
		if currentEmpty {
			return ActionSkip
		}
		return ActionClear
	}
	if !candidateSupplied {
		return ActionSkip
	}
	if mode == ReplaceModeMissing && !currentEmpty {
		return ActionSkip
	}
	return ActionSet
}

// CoverAllowed reports whether a candidate thumbnail may be applied: the
// cover must not be locked and the refresh must have covers enabled.
func CoverAllowed(coverLocked, refreshCovers bool) bool {
	return refreshCovers && !coverLocked
}

package metadata

import (
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
)

func TestDecideScalar(t *testing.T) {
	t.Run("lock beats everything including clears", func(t *testing.T) {
		assert.Equal(t, ActionSkip, DecideScalar(true, false, ReplaceModeAll, true, true, true))
		assert.Equal(t, ActionSkip, DecideScalar(true, true, ReplaceModeAll, true, true, true))
		assert.Equal(t, ActionSkip, DecideScalar(true, false, ReplaceModeNone, false, true, true))
	})

	t.Run("clear beats a supplied value", func(t *testing.T) {
		assert.Equal(t, ActionClear, DecideScalar(false, true, ReplaceModeNone, true, true, true))
		assert.Equal(t, ActionClear, DecideScalar(false, true, ReplaceModeAll, true, false, true))
		// Nothing to clear.
		assert.Equal(t, ActionSkip, DecideScalar(false, true, ReplaceModeNone, false, true, true))
	})

	t.Run("replace all overwrites and nulls absent nullable fields", func(t *testing.T) {
		assert.Equal(t, ActionSet, DecideScalar(false, false, ReplaceModeAll, true, true, true))
		assert.Equal(t, ActionClear, DecideScalar(false, false, ReplaceModeAll, true, false, true))
		assert.Equal(t, ActionSkip, DecideScalar(false, false, ReplaceModeAll, true, false, false))
		assert.Equal(t, ActionSkip, DecideScalar(false, false, ReplaceModeAll, false, false, true))
	})

	t.Run("replace missing only fills empty fields", func(t *testing.T) {
		assert.Equal(t, ActionSet, DecideScalar(false, false, ReplaceModeMissing, false, true, true))
		assert.Equal(t, ActionSkip, DecideScalar(false, false, ReplaceModeMissing, true, true, true))
		assert.Equal(t, ActionSkip, DecideScalar(false, false, ReplaceModeMissing, false, false, true))
	})

	t.Run("direct edits overwrite when a value was supplied", func(t *testing.T) {
		assert.Equal(t, ActionSet, DecideScalar(false, false, ReplaceModeNone, true, true, true))
		assert.Equal(t, ActionSkip, DecideScalar(false, false, ReplaceModeNone, true, false, true))
	})
}

func TestDecideSet(t *testing.T) {
	t.Run("lock beats everything", func(t *testing.T) {
		assert.Equal(t, ActionSkip, DecideSet(true, true, ReplaceModeAll, false, true))
	})

	t.Run("clear empties a populated set", func(t *testing.T) {
		assert.Equal(t, ActionClear, DecideSet(false, true, ReplaceModeNone, false, true))
		assert.Equal(t, ActionSkip, DecideSet(false, true, ReplaceModeNone, true, true))
	})

	t.Run("absent candidates never touch the set", func(t *testing.T) {
		assert.Equal(t, ActionSkip, DecideSet(false, false, ReplaceModeAll, false, false))
	})

	t.Run("replace missing respects populated sets", func(t *testing.T) {
		assert.Equal(t, ActionSkip, DecideSet(false, false, ReplaceModeMissing, false, true))
		assert.Equal(t, ActionSet, DecideSet(false, false, ReplaceModeMissing, true, true))
	})

	t.Run("replace all overwrites populated sets", func(t *testing.T) {
		assert.Equal(t, ActionSet, DecideSet(false, false, ReplaceModeAll, false, true))
	})
}

func TestCoverAllowed(t *testing.T) {
	assert.True(t, CoverAllowed(false, true))
	assert.False(t, CoverAllowed(true, true))
	assert.False(t, CoverAllowed(false, false))
}

func TestValidAndPresent(t *testing.T) {
	t.Run("blank strings are neither valid nor present", func(t *testing.T) {
		assert.False(t, Valid(pointerutil.String("  ")))
		assert.False(t, Present(pointerutil.String("  ")))
		assert.True(t, Valid(pointerutil.String("x")))
		assert.True(t, Present(pointerutil.String("x")))
	})

	t.Run("zero numbers are valid but not present", func(t *testing.T) {
		assert.True(t, Valid(pointerutil.Int(0)))
		assert.False(t, Present(pointerutil.Int(0)))
		assert.True(t, Valid(pointerutil.Float64(0)))
		assert.False(t, Present(pointerutil.Float64(0)))
	})

	t.Run("nil pointers are absent", func(t *testing.T) {
		var s *string
		var ts *time.Time
		assert.False(t, Valid(s))
		assert.False(t, Valid(ts))
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(pointerutil.String("a"), pointerutil.String("a")))
	assert.False(t, Equal(pointerutil.String("a"), pointerutil.String("b")))

	var nilStr *string
	assert.True(t, Equal(nilStr, nilStr))
	assert.False(t, Equal(nilStr, pointerutil.String("a")))

	now := time.Now()
	utc := now.UTC()
	assert.True(t, Equal(&now, &utc))

	assert.False(t, Equal(pointerutil.String("1"), pointerutil.Int(1)))
}

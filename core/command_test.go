package core

import "testing"

func TestNewCommandDataOptionalFieldsUnset(t *testing.T) {
	cmd := NewCommandData()
	for name, v := range map[string]float32{
		"Position":       cmd.Position,
		"StopPosition":   cmd.StopPosition,
		"BoundsMin":      cmd.BoundsMin,
		"BoundsMax":      cmd.BoundsMax,
		"SetPosition":    cmd.SetPosition,
		"RezeroPosition": cmd.RezeroPosition,
		"ThetaRad":       cmd.ThetaRad,
	} {
		if !IsUnset(v) {
			t.Errorf("%s = %v, want Unset()", name, v)
		}
	}
}

func TestPublishDefaultTimeoutSubstitution(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.TimeoutS = 0
	c.publish(cmd, 0.5, 0)
	got := c.load()
	if got.TimeoutS != 0.5 {
		t.Errorf("TimeoutS = %v, want default 0.5", got.TimeoutS)
	}
}

func TestPublishKeepsExplicitTimeout(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.TimeoutS = 2.0
	c.publish(cmd, 0.5, 0)
	if got := c.load().TimeoutS; got != 2.0 {
		t.Errorf("TimeoutS = %v, want explicit 2.0", got)
	}
}

func TestPublishStopPositionSignFixup(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.StopPosition = -3.0
	cmd.Velocity = 5.0 // moving away from a negative stop; producer flips it
	c.publish(cmd, 1.0, 0)
	if got := c.load().Velocity; got != -5.0 {
		t.Errorf("Velocity after fixup = %v, want -5.0", got)
	}
}

func TestPublishStopPositionSignAlreadyCorrect(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.StopPosition = 3.0
	cmd.Velocity = 5.0
	c.publish(cmd, 1.0, 0)
	if got := c.load().Velocity; got != 5.0 {
		t.Errorf("Velocity = %v, want unchanged 5.0", got)
	}
}

// TestPublishStopPositionSignComparesCurrentPosition covers the case
// that comparing stop_position against zero gets wrong: current and
// stop_position both negative, with stop_position the nearer (greater)
// of the two, so the correct direction of travel is positive even
// though stop_position itself is negative.
func TestPublishStopPositionSignComparesCurrentPosition(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.StopPosition = -1.0
	cmd.Velocity = -5.0
	c.publish(cmd, 1.0, -10.0)
	if got := c.load().Velocity; got != 5.0 {
		t.Errorf("Velocity after fixup = %v, want 5.0 (toward stop_position from current)", got)
	}
}

func TestPublishAlternatesSlots(t *testing.T) {
	c := newCommandSlots()
	first := c.load()
	cmd := NewCommandData()
	cmd.Velocity = 1.0
	c.publish(cmd, 1.0, 0)
	second := c.load()
	if second == first {
		t.Errorf("publish did not swap to the other slot")
	}
	cmd.Velocity = 2.0
	c.publish(cmd, 1.0, 0)
	third := c.load()
	if third != first {
		t.Errorf("second publish did not reuse the original slot")
	}
}

func TestConsumeOneShotClearsOnlyOneShotFields(t *testing.T) {
	c := newCommandSlots()
	cmd := NewCommandData()
	cmd.SetPosition = 1.5
	cmd.RezeroPosition = 0.0
	cmd.Velocity = 4.0
	c.publish(cmd, 1.0, 0)

	loaded := c.load()
	consumeOneShot(loaded)

	if !IsUnset(loaded.SetPosition) {
		t.Errorf("SetPosition = %v, want cleared", loaded.SetPosition)
	}
	if !IsUnset(loaded.RezeroPosition) {
		t.Errorf("RezeroPosition = %v, want cleared", loaded.RezeroPosition)
	}
	if loaded.Velocity != 4.0 {
		t.Errorf("Velocity = %v, want untouched 4.0", loaded.Velocity)
	}
}

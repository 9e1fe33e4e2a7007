package core

import "sync/atomic"

// CommandData is the producer-written, ISR-read per-cycle command
// (spec.md §3). Optional fields use the Unset()/IsUnset() NaN sentinel
// rather than pointers, so the whole struct stays a plain value type
// that can live in one of the channel's two owned slots with no
// allocation.
type CommandData struct {
	Mode Mode

	Position     float32 // Unset() if not driving an absolute reseed this cycle
	Velocity     float32
	FeedforwardNm float32
	MaxTorqueNm  float32
	KpScale      float32
	KdScale      float32

	StopPosition float32 // Unset() if none
	BoundsMin    float32 // Unset() if none
	BoundsMax    float32 // Unset() if none

	TimeoutS float32

	// PWM and Voltage are the raw 3-vectors for ModePwm/ModeVoltage.
	PWM     [3]float32
	Voltage [3]float32

	// DCurrentA/QCurrentA are the setpoints for ModeCurrent.
	DCurrentA float32
	QCurrentA float32

	// ThetaRad/VoltageFocV parametrize ModeVoltageFoc's open-loop drive:
	// a commanded electrical angle and a q-axis voltage magnitude,
	// independent of the measured encoder angle.
	ThetaRad   float32
	VoltageFocV float32

	// DVoltage/QVoltage are the setpoints for ModeVoltageDq.
	DVoltage float32
	QVoltage float32

	// SetPosition, when not Unset(), is a one-shot absolute reseed of
	// control_position applied once and then cleared (spec.md §4.5).
	SetPosition float32

	// RezeroPosition, when not Unset(), is a one-shot request to shift
	// unwrapped_raw by whole rotations so the scaled position becomes
	// as close as possible to this value, then is cleared.
	RezeroPosition float32
}

// NewCommandData returns a CommandData with every optional field Unset().
func NewCommandData() CommandData {
	return CommandData{
		Position:       Unset(),
		StopPosition:   Unset(),
		BoundsMin:      Unset(),
		BoundsMax:      Unset(),
		SetPosition:    Unset(),
		RezeroPosition: Unset(),
		ThetaRad:       Unset(),
	}
}

// commandSlots is the two-owned-slots-plus-atomic-pointer channel of
// spec.md §4.5/§9: the producer (main) writes into whichever slot
// "current" does not point at, then atomically swaps the pointer. The
// ISR only ever dereferences the pointer it loads, so it observes
// either the previous complete command or the new one, never a torn
// value.
type commandSlots struct {
	slots   [2]CommandData
	current atomic.Pointer[CommandData]
}

// newCommandSlots returns a channel seeded with a stopped command in
// both slots.
func newCommandSlots() *commandSlots {
	c := &commandSlots{}
	c.slots[0] = NewCommandData()
	c.slots[1] = NewCommandData()
	c.current.Store(&c.slots[0])
	return c
}

// publish is the producer-side entry point (main-context Command()). It
// applies the stop_position sign-fixup and default-timeout substitution
// of spec.md §4.5, writes into the slot current doesn't point at, then
// swaps. currentPosition is the servo's current unwrapped scaled
// position, used only for the sign-fixup below.
func (c *commandSlots) publish(cmd CommandData, defaultTimeoutS, currentPosition float32) {
	if IsUnset(cmd.Position) && !IsUnset(cmd.StopPosition) && cmd.Velocity != 0 {
		// sign of velocity should point toward stop_position, compared
		// against the current position rather than zero.
		sign := float32(-1)
		if cmd.StopPosition > currentPosition {
			sign = 1
		}
		mag := cmd.Velocity
		if mag < 0 {
			mag = -mag
		}
		cmd.Velocity = mag * sign
	}
	if cmd.TimeoutS == 0 {
		cmd.TimeoutS = defaultTimeoutS
	}

	cur := c.current.Load()
	var next *CommandData
	if cur == &c.slots[0] {
		next = &c.slots[1]
	} else {
		next = &c.slots[0]
	}
	*next = cmd
	c.current.Store(next)
}

// load is the ISR-side entry point: read the currently published command.
func (c *commandSlots) load() *CommandData {
	return c.current.Load()
}

// consumeOneShot clears the one-shot fields on the currently published
// command after they have been applied, per spec.md §4.5, so a later
// swap that doesn't touch them doesn't cause a repeated reseed. This is
// called only from the ISR and mutates through the same pointer main
// will see on the next read.
func consumeOneShot(cmd *CommandData) {
	cmd.SetPosition = Unset()
	cmd.RezeroPosition = Unset()
}

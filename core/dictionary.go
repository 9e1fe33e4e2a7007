package core

import (
	"bytes"
	"fmt"

	"bldcservo/tinycompress"
)

// Dictionary is the in-module PersistentConfig implementation: it
// registers the three configuration structs named in spec.md §6
// (motor, servo, servopos) and can render them into a compressed blob
// for a host tool to fetch, the way the source's command dictionary is
// served to a host over the wire.
//
// Registration only records pointers; callers still own the storage
// and must follow spec.md §5's UpdateConfig contract themselves (call
// it only while the ISR is stopped or between ticks — Dictionary has no
// way to enforce that from here).
type Dictionary struct {
	motor    *MotorConfig
	servo    *ServoConfig
	servoPos *PositionConfig

	compressor *tinycompress.ZlibEncoder
}

// NewDictionary constructs an empty, unregistered Dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{compressor: tinycompress.NewZlib(4096)}
}

func (d *Dictionary) RegisterMotor(cfg *MotorConfig)           { d.motor = cfg }
func (d *Dictionary) RegisterServo(cfg *ServoConfig)           { d.servo = cfg }
func (d *Dictionary) RegisterServoPosition(cfg *PositionConfig) { d.servoPos = cfg }

// UpdateConfig runs fn, which is expected to mutate the registered
// structs in place. spec.md §5 requires the caller to only invoke this
// while the ISR is stopped or between ticks for fields with complex
// invariants (pole count, offset table length).
func (d *Dictionary) UpdateConfig(fn func() error) error {
	return fn()
}

// serialize renders the registered configuration as a flat text
// listing, the payload that gets compressed for a host identify
// request.
func (d *Dictionary) serialize() []byte {
	var buf bytes.Buffer
	if d.motor != nil {
		m := d.motor
		fmt.Fprintf(&buf, "motor poles=%d resistance_ohm=%g v_per_hz=%g unwrapped_scale=%g invert=%t position_offset=%d offset_table_len=%d\n",
			m.Poles, m.ResistanceOhm, m.VPerHz, m.UnwrappedScale, m.Invert, m.PositionOffset, m.OffsetTableLen)
	}
	if d.servo != nil {
		s := d.servo
		fmt.Fprintf(&buf, "servo pwm_min=%g pwm_min_blend=%g i_gain=%g v_scale=%g max_voltage=%g fault_temp_c=%g derate_temp_c=%g max_current_a=%g derate_current_a=%g velocity_filter_length=%d velocity_threshold=%g default_timeout_s=%g rotation_current_cutoff_a=%g\n",
			s.PwmMin, s.PwmMinBlend, s.IGain, s.VScale, s.MaxVoltage, s.FaultTemperatureC, s.DerateTemperatureC,
			s.MaxCurrentA, s.DerateCurrentA, s.VelocityFilterLength, s.VelocityThresholdUnitsPerS, s.DefaultTimeoutS, s.RotationCurrentCutoffA)
	}
	if d.servoPos != nil {
		p := d.servoPos
		fmt.Fprintf(&buf, "servopos position_min=%g position_max=%g position_derate_width=%g\n",
			p.PositionMin, p.PositionMax, p.PositionDerateWidth)
	}
	return buf.Bytes()
}

// Compressed returns the zlib-compressed configuration listing, for a
// host to retrieve over the telemetry link.
func (d *Dictionary) Compressed() ([]byte, error) {
	raw := d.serialize()
	out, _, err := d.compressor.Compress(raw)
	return out, err
}

package core

import "math"

// offsetTableIndex maps a raw encoder position to its per-sector offset
// table entry: position * N / 65536, per spec.md §4.2.
func offsetTableIndex(position uint16, tableLen uint16) uint16 {
	if tableLen == 0 {
		return 0
	}
	return uint16((uint32(position) * uint32(tableLen)) / 65536)
}

// electricalTheta computes electrical_theta = wrap_2pi(((poles/2 *
// position) mod 65536) * 2pi/65536 + offset_table[...]), per spec.md
// §4.2.
func electricalTheta(position uint16, cfg MotorConfig) float32 {
	halfPoles := uint32(cfg.Poles) / 2
	if halfPoles == 0 {
		halfPoles = 1
	}
	scaled := uint16((halfPoles * uint32(position)) % 65536)

	idx := offsetTableIndex(position, cfg.OffsetTableLen)
	offset := float32(0)
	if idx < cfg.OffsetTableLen && int(idx) < len(cfg.OffsetTable) {
		offset = cfg.OffsetTable[idx]
	}

	theta := float32(scaled)*(2*math.Pi/65536) + offset
	return wrap2Pi(theta)
}

// wrap2Pi folds theta into [0, 2*pi).
func wrap2Pi(theta float32) float32 {
	const twoPi = 2 * math.Pi
	for theta < 0 {
		theta += twoPi
	}
	for theta >= twoPi {
		theta -= twoPi
	}
	return theta
}

// unwrappedDelta computes the signed int16 delta between two raw u16
// encoder readings, treating the reading as a wrapping 16-bit counter.
func unwrappedDelta(prev, cur uint16) int16 {
	return int16(cur - prev)
}

// velocityWindow is the lossless windowed average of spec.md §4.2:
// a ring buffer of signed int16 deltas whose sum, scaled, yields
// velocity without drift, and whose length can change at runtime up to
// MaxVelocityWindow.
type velocityWindow struct {
	buf    [MaxVelocityWindow]int16
	length int // active window length, 1..MaxVelocityWindow
	pos    int
	sum    int32
}

// setLength resets the window to length n, clearing accumulated history
// — called when ServoConfig.VelocityFilterLength changes.
func (w *velocityWindow) setLength(n int) {
	if n < 1 {
		n = 1
	} else if n > MaxVelocityWindow {
		n = MaxVelocityWindow
	}
	*w = velocityWindow{length: n}
}

// push adds the newest delta and evicts the oldest once the window is
// full, maintaining sum losslessly (no repeated floating-point
// accumulation).
func (w *velocityWindow) push(delta int16) {
	if w.length < 1 {
		w.length = 1
	}
	oldest := w.buf[w.pos]
	w.buf[w.pos] = delta
	w.sum += int32(delta) - int32(oldest)
	w.pos++
	if w.pos >= w.length {
		w.pos = 0
	}
}

// unitsPerSecond converts the current window sum to scaled-units/s:
// sum * unwrapped_scale * rate / (65536 * window_size).
func (w *velocityWindow) unitsPerSecond(unwrappedScale, rate float32) float32 {
	if w.length < 1 {
		return 0
	}
	return float32(w.sum) * unwrappedScale * rate / (65536.0 * float32(w.length))
}

// positionEstimator carries the ISR-owned running state of §4.2 that
// isn't part of Status directly: the previous raw encoder reading, the
// unwrapped accumulator, and the velocity window.
type positionEstimator struct {
	havePrev bool
	prevRaw  uint16

	unwrappedRaw int32

	velocity velocityWindow
}

// update folds one new raw encoder reading into the estimator, updating
// the unwrapped accumulator and velocity window, and returns the signed
// delta (the Sampler computes its own copy for the encoder-fault check). When valid
// is false (the startup encoder-invalid window of spec.md §6), prevRaw
// still advances so the first post-window delta is small, but nothing
// accumulates into position or velocity.
func (e *positionEstimator) update(raw uint16, valid bool) (delta int16) {
	if !e.havePrev {
		e.havePrev = true
		e.prevRaw = raw
		return 0
	}
	delta = unwrappedDelta(e.prevRaw, raw)
	e.prevRaw = raw
	if !valid {
		return delta
	}
	e.unwrappedRaw += int32(delta)
	e.velocity.push(delta)
	return delta
}

// scaledPosition returns unwrapped_raw * unwrapped_scale / 65536.
func (e *positionEstimator) scaledPosition(unwrappedScale float32) float32 {
	return float32(e.unwrappedRaw) * unwrappedScale / 65536.0
}

// rezero shifts unwrapped_raw by a whole number of rotations so that
// scaledPosition becomes as close as possible to target, per spec.md
// §4.2's rezero_position behavior.
func (e *positionEstimator) rezero(target, unwrappedScale float32) {
	if unwrappedScale == 0 {
		return
	}
	targetRaw := target * 65536.0 / unwrappedScale
	rotationSpan := float32(65536)
	rotations := math.Round(float64((targetRaw - float32(e.unwrappedRaw)) / rotationSpan))
	e.unwrappedRaw += int32(rotations) * 65536
}

// phaseCurrentsA converts raw ADC counts to engineering-unit phase
// currents: (raw - offset) * adc_scale, adc_scale = 3.3 / (4096 *
// Rshunt * igain), per spec.md §4.2.
func phaseCurrentsA(raw, offset [3]ADCValue, rshuntOhm, igain float32) [3]float32 {
	scale := float32(3.3) / (4096.0 * rshuntOhm * igain)
	var out [3]float32
	for i := 0; i < 3; i++ {
		out[i] = float32(int32(raw[i])-int32(offset[i])) * scale
	}
	return out
}

// clarkePark runs the Clarke+Park ("DQ") transform on three phase
// currents with the legacy phase swap (phases 1, 3, 2) of spec.md §4.2
// and §9: reimplementations must preserve this ordering bit-for-bit to
// stay compatible with deployed motor configurations.
func clarkePark(phaseA [3]float32, sinTheta, cosTheta float32) (id, iq float32) {
	ia := phaseA[0]
	ib := phaseA[2]
	ic := phaseA[1]

	// Clarke: alpha/beta from two of the three phases (third is redundant
	// since ia+ib+ic == 0).
	alpha := ia
	beta := (ib - ic) / float32(math.Sqrt(3))

	// Park: rotate (alpha, beta) into the rotor frame.
	id = alpha*cosTheta + beta*sinTheta
	iq = -alpha*sinTheta + beta*cosTheta
	return id, iq
}

// inverseParkPhases rotates (d, q) voltages back into three phase
// voltages with the same legacy swap mirrored onto the output side
// (spec.md §4.4's "mirrored by an identical swap of PWM outputs").
func inverseParkPhases(dV, qV, sinTheta, cosTheta float32) (phaseA [3]float32) {
	alpha := dV*cosTheta - qV*sinTheta
	beta := dV*sinTheta + qV*cosTheta

	sqrt3 := float32(math.Sqrt(3))
	a := alpha
	b := -0.5*alpha + 0.5*sqrt3*beta
	c := -0.5*alpha - 0.5*sqrt3*beta

	phaseA[0] = a
	phaseA[2] = b
	phaseA[1] = c
	return phaseA
}

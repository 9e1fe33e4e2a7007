package core

// thermistorLookupC converts a raw ADC count (0..4095) to degrees Celsius
// using the configured 32-entry table, per spec.md §4.1: the table is
// indexed by raw*32/4096 clamped to [1, 30], and the result is linearly
// interpolated between the two surrounding entries.
func thermistorLookupC(raw ADCValue, table [32]float32) float32 {
	index := int(raw) * 32 / 4096
	if index < 1 {
		index = 1
	} else if index > 30 {
		index = 30
	}

	lo := table[index]
	hi := table[index+1]

	// fraction is how far raw sits past the index's lower breakpoint,
	// in units of one table step (4096/32 = 128 counts).
	const step = 4096 / 32
	frac := float32(int(raw)-index*step) / float32(step)

	return lo + (hi-lo)*frac
}

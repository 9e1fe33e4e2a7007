package core

import "testing"

func TestThermistorLookupClampsIndex(t *testing.T) {
	var table [32]float32
	for i := range table {
		table[i] = float32(i)
	}
	// raw=0 computes index 0, clamped up to 1: extrapolating one bucket
	// back from table[1]/table[2] lands exactly on table[0] for this
	// linear table.
	if got := thermistorLookupC(0, table); got != table[0] {
		t.Errorf("raw=0 -> %v, want %v", got, table[0])
	}
	// raw=4095 computes index 31 (out of range: offset+1 would be 32),
	// clamped down to 30, so the fraction overshoots past the [30,31]
	// bucket rather than indexing out of bounds.
	got := thermistorLookupC(4095, table)
	want := table[30] + (table[31]-table[30])*float32(4095-30*128)/128
	if diff := got - want; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("raw=4095 -> %v, want %v", got, want)
	}
}

func TestThermistorLookupInterpolates(t *testing.T) {
	var table [32]float32
	for i := range table {
		table[i] = float32(i) * 10
	}
	// raw=15*128=1920 is the start of index 15's bucket: frac=0, so the
	// result is the lower table entry, table[15].
	if got := thermistorLookupC(1920, table); got != table[15] {
		t.Errorf("bucket start raw -> %v, want %v", got, table[15])
	}
	// Halfway through index 15's bucket interpolates toward table[16].
	got := thermistorLookupC(1920+64, table)
	want := (table[15] + table[16]) / 2
	if diff := got - want; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("midpoint raw -> %v, want %v", got, want)
	}
}

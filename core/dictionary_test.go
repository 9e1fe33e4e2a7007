package core

import (
	"bytes"
	"testing"
)

func TestDictionaryCompressedRoundTrips(t *testing.T) {
	d := NewDictionary()
	motor := MotorConfig{Poles: 14, VPerHz: 0.1, UnwrappedScale: 1.0}
	servo := DefaultServoConfig()
	pos := DefaultPositionConfig()
	d.RegisterMotor(&motor)
	d.RegisterServo(&servo)
	d.RegisterServoPosition(&pos)

	compressed, err := d.Compressed()
	if err != nil {
		t.Fatalf("Compressed: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("Compressed returned no data")
	}

	dec := NewDictionary().compressor
	raw, n, err := dec.Decompress(compressed, len(compressed))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Contains(raw[:n], []byte("poles=14")) {
		t.Errorf("decompressed listing = %q, want it to mention poles=14", raw[:n])
	}
}

func TestDictionaryUpdateConfigRunsFn(t *testing.T) {
	d := NewDictionary()
	ran := false
	if err := d.UpdateConfig(func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if !ran {
		t.Error("UpdateConfig did not run fn")
	}
}

package media

import (
	"bytes"
	"io"
	"testing"
)

func TestProbeNonAudioYieldsZeroInfo(t *testing.T) {
	payload := []byte("definitely not an audio container")
	r := bytes.NewReader(payload)

	info, err := Probe(r, "upload.bin")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info != (Info{}) {
		t.Fatalf("Probe() = %+v, want zero Info", info)
	}

	// The reader must be rewound for the subsequent storage write.
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read after Probe: %v", err)
	}
	if !bytes.Equal(rest, payload) {
		t.Fatalf("reader not rewound: %d of %d bytes left", len(rest), len(payload))
	}
}

func TestProbeGarbageMP3DoesNotFail(t *testing.T) {
	r := bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03})

	info, err := Probe(r, "upload.mp3")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.DurationSeconds != 0 {
		t.Fatalf("DurationSeconds = %d, want 0", info.DurationSeconds)
	}
}

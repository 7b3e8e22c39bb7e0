package index

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeLogID_LittleEndian(t *testing.T) {
	t.Parallel()

	// The UUID bytes are the big-endian form of the 128-bit integer, so the
	// encoded log is the byte-reversed UUID.
	id := uuid.UUID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	want := []byte{0x10, 0x0f, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}

	got := encodeLogID(id)
	if !bytes.Equal(got, want) {
		t.Errorf("encodeLogID() = %x, want %x", got, want)
	}
}

func TestDecodeLogID_RoundTrip(t *testing.T) {
	t.Parallel()

	for i := 0; i < 10; i++ {
		id := uuid.New()
		got, err := decodeLogID(encodeLogID(id))
		if err != nil {
			t.Fatalf("decodeLogID() error = %v", err)
		}
		if got != id {
			t.Fatalf("round trip = %v, want %v", got, id)
		}
	}
}

func TestDecodeLogID_WrongSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 15, 17} {
		if _, err := decodeLogID(make([]byte, size)); err == nil {
			t.Errorf("decodeLogID(%d bytes) error = nil, want error", size)
		}
	}
}

func TestRecoveryLog_ReadWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log")

	// Absent log means never committed.
	_, exists, err := readRecoveryLog(path)
	if err != nil {
		t.Fatalf("readRecoveryLog(absent) error = %v", err)
	}
	if exists {
		t.Fatal("readRecoveryLog(absent) exists = true, want false")
	}

	id := uuid.New()
	if err := writeRecoveryLog(path, id); err != nil {
		t.Fatalf("writeRecoveryLog() error = %v", err)
	}

	got, exists, err := readRecoveryLog(path)
	if err != nil || !exists {
		t.Fatalf("readRecoveryLog() = %v, %v, %v", got, exists, err)
	}
	if got != id {
		t.Errorf("logged id = %v, want %v", got, id)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(raw) != recoveryLogSize {
		t.Errorf("log file is %d bytes, want %d", len(raw), recoveryLogSize)
	}

	// Overwrites replace the previous id.
	next := uuid.New()
	if err := writeRecoveryLog(path, next); err != nil {
		t.Fatalf("writeRecoveryLog(overwrite) error = %v", err)
	}
	got, _, _ = readRecoveryLog(path)
	if got != next {
		t.Errorf("logged id after overwrite = %v, want %v", got, next)
	}
}

func TestWriteRecoveryLogIfAbsent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log")

	first := uuid.New()
	if err := writeRecoveryLogIfAbsent(path, first); err != nil {
		t.Fatalf("writeRecoveryLogIfAbsent() error = %v", err)
	}

	// A second call must not clobber the existing log.
	if err := writeRecoveryLogIfAbsent(path, uuid.New()); err != nil {
		t.Fatalf("writeRecoveryLogIfAbsent(existing) error = %v", err)
	}

	got, exists, err := readRecoveryLog(path)
	if err != nil || !exists {
		t.Fatalf("readRecoveryLog() = %v, %v, %v", got, exists, err)
	}
	if got != first {
		t.Errorf("logged id = %v, want the first id %v", got, first)
	}
}

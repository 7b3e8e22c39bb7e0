package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// The recovery log is a single 16-byte file holding the 128-bit id of the
// last message known to be committed to the channel's index, encoded
// little-endian. The file is present iff the index has ever been committed;
// updates replace the whole file atomically.
const recoveryLogSize = 16

// encodeLogID renders id as a little-endian 128-bit integer.
func encodeLogID(id uuid.UUID) []byte {
	buf := make([]byte, recoveryLogSize)
	for i := range buf {
		buf[i] = id[len(id)-1-i]
	}
	return buf
}

// decodeLogID reads a little-endian 128-bit integer back into a UUID.
func decodeLogID(buf []byte) (uuid.UUID, error) {
	if len(buf) != recoveryLogSize {
		return uuid.Nil, fmt.Errorf("recovery log is %d bytes, want %d", len(buf), recoveryLogSize)
	}
	var id uuid.UUID
	for i := range buf {
		id[len(id)-1-i] = buf[i]
	}
	return id, nil
}

// readRecoveryLog returns the logged id and whether the log exists.
func readRecoveryLog(path string) (uuid.UUID, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("read recovery log: %w", err)
	}
	id, err := decodeLogID(raw)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// writeRecoveryLog replaces the recovery log with id, atomically.
func writeRecoveryLog(path string, id uuid.UUID) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "log.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp recovery log: %w", err)
	}
	if _, err := tmp.Write(encodeLogID(id)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write recovery log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync recovery log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp recovery log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace recovery log: %w", err)
	}
	return nil
}

// writeRecoveryLogIfAbsent creates the recovery log with id only when no log
// exists yet, so crash recovery has a starting point before the first commit.
func writeRecoveryLogIfAbsent(path string, id uuid.UUID) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create recovery log: %w", err)
	}
	if _, err := f.Write(encodeLogID(id)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write recovery log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync recovery log: %w", err)
	}
	return f.Close()
}

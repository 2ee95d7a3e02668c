package vector

import (
	"bytes"
	"encoding/gob"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/granary-ai/granary/internal/errors"
)

// Snapshot layout: 8-byte magic, 32-byte BLAKE2b-256 checksum of the
// payload, then the gob-encoded payload.
var snapshotMagic = []byte("GRNIDX01")

const snapshotHeaderLen = 8 + blake2b.Size256

type snapshotPayload struct {
	Dimensions int
	Entries    []Entry
}

// Flush writes the current index contents to the snapshot path. The file is
// staged under a temporary name and renamed into place so readers never see
// a partial snapshot.
func (idx *MemoryIndex) Flush() error {
	if idx.path == "" {
		return nil
	}

	idx.mu.RLock()
	payload := snapshotPayload{
		Dimensions: idx.dimensions,
		Entries:    make([]Entry, len(idx.entries)),
	}
	copy(payload.Entries, idx.entries)
	idx.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errors.Internal("failed to encode index snapshot", err)
	}
	checksum := blake2b.Sum256(buf.Bytes())

	tmp := idx.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Internal("failed to create snapshot file", err)
	}
	if _, err := f.Write(snapshotMagic); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Internal("failed to write snapshot", err)
	}
	if _, err := f.Write(checksum[:]); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Internal("failed to write snapshot", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Internal("failed to write snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Internal("failed to sync snapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Internal("failed to close snapshot", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		os.Remove(tmp)
		return errors.Internal("failed to replace snapshot", err)
	}
	return nil
}

// Load replaces the index contents with the snapshot at the configured
// path. A missing file leaves the index empty; a damaged one is reported
// as index corruption.
func (idx *MemoryIndex) Load() error {
	if idx.path == "" {
		return nil
	}

	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IndexCorruption("failed to read index snapshot", err)
	}
	if len(data) < snapshotHeaderLen {
		return errors.IndexCorruption("index snapshot is truncated", nil).
			WithContext("size", len(data))
	}
	if !bytes.Equal(data[:8], snapshotMagic) {
		return errors.IndexCorruption("index snapshot has an unrecognized header", nil)
	}

	stored := data[8:snapshotHeaderLen]
	payload := data[snapshotHeaderLen:]
	checksum := blake2b.Sum256(payload)
	if !bytes.Equal(stored, checksum[:]) {
		return errors.IndexCorruption("index snapshot checksum mismatch", nil)
	}

	var decoded snapshotPayload
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&decoded); err != nil {
		return errors.IndexCorruption("failed to decode index snapshot", err)
	}
	if decoded.Dimensions != idx.dimensions {
		return errors.IndexCorruption("index snapshot dimensions do not match configuration", nil).
			WithContext("expected", idx.dimensions).
			WithContext("got", decoded.Dimensions)
	}
	for _, entry := range decoded.Entries {
		if len(entry.Vector) != decoded.Dimensions {
			return errors.IndexCorruption("index snapshot contains a malformed vector", nil).
				WithContext("chunk_id", entry.ChunkID)
		}
	}

	idx.mu.Lock()
	idx.entries = decoded.Entries
	idx.mu.Unlock()
	return nil
}

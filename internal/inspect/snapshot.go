package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/caffeineduck/memview/native"
	"github.com/fxamacker/cbor/v2"
)

var (
	ErrSnapshotMismatch = errors.New("snapshot does not match live allocations")
	ErrNoFiles          = errors.New("file access is disabled")
)

// files is where snapshot and restore read and write.
type files interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

// hostFiles uses paths as given.
type hostFiles struct{}

func (hostFiles) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (hostFiles) WriteFile(name string, data []byte) error {
	return os.WriteFile(name, data, 0o644)
}

// rootFiles resolves paths inside a directory. Paths escaping it, including
// through symlinks, fail.
type rootFiles string

func (dir rootFiles) ReadFile(name string) ([]byte, error) {
	root, err := os.OpenRoot(string(dir))
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return root.ReadFile(name)
}

func (dir rootFiles) WriteFile(name string, data []byte) error {
	root, err := os.OpenRoot(string(dir))
	if err != nil {
		return err
	}
	defer root.Close()
	return root.WriteFile(name, data, 0o644)
}

type noFiles struct{}

func (noFiles) ReadFile(string) ([]byte, error) { return nil, ErrNoFiles }
func (noFiles) WriteFile(string, []byte) error  { return ErrNoFiles }

// Snapshot is the contents of every live allocation, stored as CBOR.
type Snapshot struct {
	Blocks []SnapshotBlock `cbor:"1,keyasint"`
}

type SnapshotBlock struct {
	Addr uint32 `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// Take copies every live allocation of m.
func Take(m *native.Memory) (Snapshot, error) {
	var snap Snapshot
	for _, b := range m.Blocks() {
		data, err := m.Read(b.Addr, b.Size)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Blocks = append(snap.Blocks, SnapshotBlock{Addr: uint32(b.Addr), Data: data})
	}
	return snap, nil
}

// Apply writes the snapshot back. Every block must still be allocated with
// the same size; nothing is written otherwise.
func (snap Snapshot) Apply(m *native.Memory) error {
	for _, b := range snap.Blocks {
		size, ok := m.SizeOf(native.Addr(b.Addr))
		if !ok || size != uint32(len(b.Data)) {
			return fmt.Errorf("%w: block %s", ErrSnapshotMismatch, native.Addr(b.Addr))
		}
	}
	for _, b := range snap.Blocks {
		if err := m.Write(native.Addr(b.Addr), b.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shell) snapshot(_ context.Context, args []string) error {
	snap, err := Take(s.mem)
	if err != nil {
		return err
	}
	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.files.WriteFile(args[0], data); err != nil {
		return err
	}
	s.printf("saved %d blocks\n", len(snap.Blocks))
	return nil
}

func (s *Shell) restore(_ context.Context, args []string) error {
	data, err := s.files.ReadFile(args[0])
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.Apply(s.mem); err != nil {
		return err
	}
	s.printf("restored %d blocks\n", len(snap.Blocks))
	return nil
}

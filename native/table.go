package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

var ErrUnknownCode = errors.New("no function at code address")

// Table maps code addresses to callable functions, like a wasm funcref
// table. Slot 0 is the null function pointer. Removed slots stay empty for
// the lifetime of the table so a stale pointer can never reach a different
// function.
type Table struct {
	mu    sync.RWMutex
	slots []api.Function
	live  int
}

func newTable() *Table {
	return &Table{slots: make([]api.Function, 1)}
}

// Insert places fn in a fresh slot and returns its code address.
func (t *Table) Insert(fn api.Function) (Addr, error) {
	if fn == nil {
		return Null, errors.New("insert nil function")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = append(t.slots, fn)
	t.live++
	return Addr(len(t.slots) - 1), nil
}

// Lookup returns the function at addr.
func (t *Table) Lookup(addr Addr) (api.Function, error) {
	if addr.IsNull() {
		return nil, ErrNullAddress
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(addr) >= len(t.slots) || t.slots[addr] == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, addr)
	}
	return t.slots[addr], nil
}

// Remove empties the slot at addr.
func (t *Table) Remove(addr Addr) error {
	if addr.IsNull() {
		return ErrNullAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(addr) >= len(t.slots) || t.slots[addr] == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCode, addr)
	}
	t.slots[addr] = nil
	t.live--
	return nil
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

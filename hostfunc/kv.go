package hostfunc

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// KVStore is the state behind the kv library. It outlives the runtimes the
// library is opened in.
type KVStore struct {
	data map[string]string
	mu   sync.RWMutex
}

func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

func (s *KVStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

func (s *KVStore) Set(key, val string) {
	s.mu.Lock()
	s.data[key] = val
	s.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (s *KVStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Library returns a library over s:
//
//	void kv_set(const char *key, const char *value);
//	char *kv_get(const char *key);  /* malloc'd copy, NULL if missing */
//	int kv_delete(const char *key); /* 1 if removed */
//	size_t kv_len(void);
func (s *KVStore) Library() *Library {
	lib := NewLibrary("kv")

	lib.Register("kv_set", Native{
		Params: sig(i32, i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			key, err := m.ReadCString(addr(stack[0]))
			if err != nil {
				return err
			}
			val, err := m.ReadCString(addr(stack[1]))
			if err != nil {
				return err
			}
			s.Set(key, val)
			return nil
		},
	})

	lib.Register("kv_get", Native{
		Params:  sig(i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			m := env.Memory()
			key, err := m.ReadCString(addr(stack[0]))
			if err != nil {
				return err
			}
			val, ok := s.Get(key)
			if !ok {
				stack[0] = 0
				return nil
			}
			p, err := m.CString(val)
			if err != nil {
				return err
			}
			stack[0] = api.EncodeU32(uint32(p))
			return nil
		},
	})

	lib.Register("kv_delete", Native{
		Params:  sig(i32),
		Results: sig(i32),
		Fn: func(_ context.Context, env Env, stack []uint64) error {
			key, err := env.Memory().ReadCString(addr(stack[0]))
			if err != nil {
				return err
			}
			stack[0] = 0
			if s.Delete(key) {
				stack[0] = 1
			}
			return nil
		},
	})

	lib.Register("kv_len", Native{
		Results: sig(i32),
		Fn: func(_ context.Context, _ Env, stack []uint64) error {
			stack[0] = api.EncodeU32(uint32(s.Len()))
			return nil
		},
	})

	return lib
}

// Package state implements the typed key/value store that guards operation
// admission throughout the kernel. A State is read by dispatcher guards to
// decide whether an Operation may run, and written by operation bodies and
// module code as the system's condition changes.
package state

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/golobby/cast"
)

// Kind identifies the declared type of a State variable.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
)

type variable struct {
	kind  Kind
	value any
}

// State is a concurrent, typed key/value store. Zero value is not usable;
// construct with New.
type State struct {
	mu   sync.RWMutex
	vars map[string]*variable
}

// New returns an empty State.
func New() *State {
	return &State{vars: make(map[string]*variable)}
}

// Get returns the raw value for name. ok is false if name is unset.
func (s *State) Get(name string) (value any, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vars[name]
	if !found {
		return nil, false
	}
	return v.value, true
}

// GetBool returns the value for name coerced to bool. ok is false if name is
// unset or does not hold a KindBool variable.
func (s *State) GetBool(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vars[name]
	if !found || v.kind != KindBool {
		return false, false
	}
	b, _ := v.value.(bool)
	return b, true
}

// GetInt returns the value for name coerced to int. ok is false if name is
// unset or does not hold a KindInt variable.
func (s *State) GetInt(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vars[name]
	if !found || v.kind != KindInt {
		return 0, false
	}
	i, _ := v.value.(int)
	return i, true
}

// GetString returns the value for name coerced to string. ok is false if
// name is unset or does not hold a KindString variable.
func (s *State) GetString(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, found := s.vars[name]
	if !found || v.kind != KindString {
		return "", false
	}
	str, _ := v.value.(string)
	return str, true
}

// Set stores value under name, coercing it to the kind implied by value's
// own type (bool, int, or string). An int64, int32, float64 or float32
// whose text form parses as an int is stored as KindInt; any other value,
// including a float with a fractional part, is stored as-is with no
// declared Kind and is only retrievable through Get.
func (s *State) Set(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := value.(type) {
	case bool:
		s.vars[name] = &variable{kind: KindBool, value: v}
		return nil
	case int:
		s.vars[name] = &variable{kind: KindInt, value: v}
		return nil
	case string:
		s.vars[name] = &variable{kind: KindString, value: v}
		return nil
	case int64, int32, float64, float32:
		i, err := cast.FromType(fmt.Sprint(v), reflect.TypeOf(int(0)))
		if err != nil {
			s.vars[name] = &variable{value: value}
			return nil
		}
		s.vars[name] = &variable{kind: KindInt, value: i}
		return nil
	default:
		s.vars[name] = &variable{value: value}
		return nil
	}
}

// Remove deletes name from the store. It is a no-op if name is unset.
func (s *State) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Snapshot returns a read-locked point-in-time copy of every stored
// value, for introspection (e.g. an admin/debug endpoint) or tests that
// want to assert on the whole variable set at once. Guards do not use
// this: they read name-by-name through Get/GetBool/GetInt/GetString
// directly against the live State, each call taking its own read lock.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v.value
	}
	return out
}

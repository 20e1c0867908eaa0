// Package methods validates RPC method names and parameters before a request
// is published, using juju/schema checkers per method.
package methods

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/schema"
)

// Set maps method names to parameter checkers. It is safe for concurrent use.
type Set struct {
	mu       sync.RWMutex
	checkers map[string]schema.Checker
}

func NewSet() *Set {
	return &Set{checkers: make(map[string]schema.Checker)}
}

// Register adds or replaces the checker for method.
func (s *Set) Register(method string, c schema.Checker) {
	s.mu.Lock()
	s.checkers[method] = c
	s.mu.Unlock()
}

// Clone returns an independent copy of s, for extending a shared set.
func (s *Set) Clone() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := NewSet()
	for m, checker := range s.checkers {
		c.checkers[m] = checker
	}
	return c
}

// Methods returns the known method names, sorted.
func (s *Set) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.checkers))
	for m := range s.checkers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Validate reports a NotFound error for an unknown method and a NotValid
// error for params the method's checker rejects. Params are checked in
// their JSON form, so structs and maps validate alike.
func (s *Set) Validate(method string, params any) error {
	s.mu.RLock()
	c, ok := s.checkers[method]
	s.mu.RUnlock()
	if !ok {
		return errors.NotFoundf("rpc method %q", method)
	}

	v, err := normalize(params)
	if err != nil {
		return errors.NewNotValid(err, fmt.Sprintf("params for %s", method))
	}
	if _, err := c.Coerce(v, []string{"params"}); err != nil {
		return errors.NewNotValid(err, fmt.Sprintf("params for %s", method))
	}
	return nil
}

func normalize(params any) (any, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

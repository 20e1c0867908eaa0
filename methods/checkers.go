package methods

import (
	"reflect"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/schema"
)

// Range accepts a number between lo and hi inclusive.
func Range(lo, hi float64) schema.Checker {
	return rangeC{lo: lo, hi: hi}
}

type rangeC struct {
	lo, hi float64
}

func (c rangeC) Coerce(v interface{}, path []string) (interface{}, error) {
	f, err := schema.Float().Coerce(v, path)
	if err != nil {
		return nil, err
	}
	n := f.(float64)
	if n < c.lo || n > c.hi {
		return nil, errors.Errorf("%s: expected number in [%g, %g], got %g", pathString(path), c.lo, c.hi, n)
	}
	return n, nil
}

// NoParams accepts absent params or an empty object.
func NoParams() schema.Checker {
	return noParamsC{}
}

type noParamsC struct{}

func (noParamsC) Coerce(v interface{}, path []string) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Len() == 0 {
		return nil, nil
	}
	return nil, errors.Errorf("%s: expected no parameters, got %v", pathString(path), v)
}

func pathString(path []string) string {
	if len(path) == 0 {
		return "value"
	}
	return strings.Join(path, ".")
}

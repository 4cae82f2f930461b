package testutil

import (
	"math"
	"reflect"

	"github.com/google/go-cmp/cmp"

	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

var (
	alwaysEqual       = cmp.Comparer(func(_, _ interface{}) bool { return true })
	defaultCmpOptions = []cmp.Option{
		// NaNs compare equal, including named float types
		cmp.FilterValues(func(x, y interface{}) bool {
			return isNaN(x) && isNaN(y)
		}, alwaysEqual),
		cmp.AllowUnexported(timeutil.Time{}),
	}

	False = false
	True  = true
)

func isNaN(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(rv.Float())
	}
	return false
}

func Diff(a, b interface{}, opts ...cmp.Option) string {
	opts = append(opts, defaultCmpOptions...)
	return cmp.Diff(a, b, opts...)
}

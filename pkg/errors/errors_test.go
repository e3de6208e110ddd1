package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad action", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: connection refused", ErrStorage), http.StatusBadGateway},
		{fmt.Errorf("%w: slot %q", ErrFieldPathMissing, "tags"), http.StatusBadGateway},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusCode(tc.err); got != tc.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

package expand

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ExampleEvalArith() {
	out, _ := EvalArith("2 + 3 * 4")
	fmt.Println(out)
	// Output: 14
}

func TestEvalArith(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"1+2", "3"},
		{" 2 * 3 ", "6"},
		{"2+3*4", "14"},
		{"(2+3)*4", "20"},
		{"10-4-3", "3"},
		{"-3+5", "2"},
		{"+7", "7"},
		{"10%4", "2"},
		{"2^10", "1024"},

		// ^ is right-associative.
		{"2^3^2", "512"},

		// Integers are preserved when the result is exact.
		{"6/2", "3"},
		{"7/2", "3.5"},
		{"1.5*2", "3"},
		{"1.5+0.25", "1.75"},
		{"2^-1", "0.5"},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := EvalArith(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalArithErrors(t *testing.T) {
	cases := []string{
		"",
		"1/0",
		"1%0",
		"5.0/0",
		"2+",
		"(1+2",
		"1 2",
		"a+1",
		"1..2",
	}

	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := EvalArith(expr)
			require.Error(t, err)

			var e *ArithError
			assert.ErrorAs(t, err, &e)
		})
	}
}

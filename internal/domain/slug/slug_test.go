package slug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Blue T-Shirt", "blue-t-shirt"},
		{"  Crème Brûlée  ", "creme-brulee"},
		{"Café & Bar -- 2024!", "cafe-bar-2024"},
		{"ÅNGSTRÖM", "angstrom"},
		{"---", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Make(tc.in), tc.in)
	}
}

func TestUnique_AppendsSuffix(t *testing.T) {
	taken := map[string]bool{"mug": true, "mug-2": true}

	got, err := Unique("mug", func(c string) (bool, error) { return taken[c], nil })

	require.NoError(t, err)
	assert.Equal(t, "mug-3", got)
}

func TestUnique_PropagatesError(t *testing.T) {
	_, err := Unique("mug", func(string) (bool, error) { return false, errors.New("db down") })
	assert.Error(t, err)
}

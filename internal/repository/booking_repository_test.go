package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeatLabel(t *testing.T) {
	cases := []struct {
		index       uint32
		seatsPerRow uint32
		want        string
	}{
		{0, 10, "A-1"},
		{9, 10, "A-10"},
		{10, 10, "B-1"},
		{11, 10, "B-2"},
		{25, 13, "B-13"},
		{26, 13, "C-1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SeatLabel(tc.index, tc.seatsPerRow),
			"index %d with %d seats per row", tc.index, tc.seatsPerRow)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "who@example.test", NormalizeEmail("  Who@Example.TEST "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

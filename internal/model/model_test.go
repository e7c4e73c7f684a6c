package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"pending", StatusPending, true},
		{"Accepted", StatusAccepted, true},
		{" REJECTED ", StatusRejected, true},
		{"maybe", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseStatus(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestHasVoter(t *testing.T) {
	s := &SuggestedLocation{Voters: []string{"a", "b"}}
	assert.True(t, s.HasVoter("b"))
	assert.False(t, s.HasVoter("c"))
}

func TestLocationHasCoords(t *testing.T) {
	lat, lng := 1.0, 2.0
	assert.True(t, Location{Lat: &lat, Lng: &lng}.HasCoords())
	assert.False(t, Location{Lat: &lat}.HasCoords())
	assert.False(t, Location{PlaceName: "Home"}.HasCoords())
}

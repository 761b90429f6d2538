package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank(t *testing.T) {
	entries := []Entry{
		{Username: "heavy", WeeklyEmissions: 900},
		{Username: "light", WeeklyEmissions: 10},
		{Username: "mid", WeeklyEmissions: 300},
	}

	tests := []struct {
		username string
		want     int
	}{
		{"light", 1},
		{"mid", 2},
		{"heavy", 3},
		{"ghost", 0},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(entries, tt.username))
		})
	}

	assert.Equal(t, "heavy", entries[0].Username, "input order is untouched")
	assert.Equal(t, 0, Rank(nil, "anyone"))
}

package brackets

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobin_EveryPairOnce(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 7} {
		t.Run(fmt.Sprintf("%d units", n), func(t *testing.T) {
			positions := make([]int, n)
			for i := range positions {
				positions[i] = 100 + i
			}
			matches, err := NewRoundRobinGenerator().GenerateBracket(context.Background(), GenerateBracketParams{Positions: positions})
			require.NoError(t, err)
			require.Len(t, matches, n*(n-1)/2)

			pairs := map[[2]int]bool{}
			perRound := map[int]map[int]bool{}
			for _, m := range matches {
				require.NotNil(t, m.Unit1ID)
				require.NotNil(t, m.Unit2ID)
				a, b := *m.Unit1ID, *m.Unit2ID
				if a > b {
					a, b = b, a
				}
				key := [2]int{a, b}
				assert.False(t, pairs[key], "pair %v scheduled twice", key)
				pairs[key] = true

				if perRound[m.Round] == nil {
					perRound[m.Round] = map[int]bool{}
				}
				assert.False(t, perRound[m.Round][a], "unit %d plays twice in round %d", a, m.Round)
				assert.False(t, perRound[m.Round][b], "unit %d plays twice in round %d", b, m.Round)
				perRound[m.Round][a] = true
				perRound[m.Round][b] = true
				assert.Nil(t, m.NextMatchUID)
			}
		})
	}
}

func TestRoundRobin_TooFewUnits(t *testing.T) {
	_, err := NewRoundRobinGenerator().GenerateBracket(context.Background(), GenerateBracketParams{Positions: []int{1}})
	require.Error(t, err)
}

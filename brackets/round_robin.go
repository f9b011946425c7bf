package brackets

import (
	"context"
	"fmt"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() BracketGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket schedules every pair of units once using the circle method,
// so each round has every unit playing at most once. With an odd field one
// unit sits out each round.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	positions := params.Positions
	if len(positions) < 2 {
		return nil, fmt.Errorf("RoundRobinGenerator: not enough units (found %d, min 2 required)", len(positions))
	}

	// 0 marks the sit-out slot; unit ids are always positive.
	ring := append([]int(nil), positions...)
	if len(ring)%2 == 1 {
		ring = append(ring, 0)
	}
	m := len(ring)

	matches := make([]*BracketMatch, 0, len(positions)*(len(positions)-1)/2)
	for round := 1; round < m; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		order := 0
		for i := 0; i < m/2; i++ {
			a, b := ring[i], ring[m-1-i]
			if a == 0 || b == 0 {
				continue
			}
			order++
			u1, u2 := a, b
			matches = append(matches, &BracketMatch{
				UID:          fmt.Sprintf("RR%dM%d", round, order),
				Round:        round,
				OrderInRound: order,
				Unit1ID:      &u1,
				Unit2ID:      &u2,
			})
		}
		// Rotate every slot but the first.
		last := ring[m-1]
		copy(ring[2:], ring[1:m-1])
		ring[1] = last
	}

	return matches, nil
}

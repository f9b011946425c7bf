package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

type node struct {
	unitID         *int
	sourceMatchUID *string
	isBye          bool
}

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateBracket pairs units in drawn order (1v2, 3v4, ...). When the field
// is not a power of two the first units drawn receive byes and are placed
// straight into their second-round match. No match is generated for a bye.
func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	positions := params.Positions
	n := len(positions)

	if n == 0 {
		return nil, errors.New("cannot generate bracket with zero units")
	}
	if n < 2 {
		return nil, errors.New("not enough units to generate a single elimination bracket (minimum 2)")
	}

	size := 1 << bits.Len(uint(n-1))
	numByes := size - n

	currentRoundNodes := make([]*node, 0, size)
	for i := 0; i < numByes; i++ {
		uid := positions[i]
		currentRoundNodes = append(currentRoundNodes, &node{unitID: &uid}, &node{isBye: true})
	}
	for i := numByes; i < n; i++ {
		uid := positions[i]
		currentRoundNodes = append(currentRoundNodes, &node{unitID: &uid})
	}

	byUID := make(map[string]*BracketMatch, size-1)
	allGeneratedMatches := make([]*BracketMatch, 0, size-1)

	for r := 1; len(currentRoundNodes) > 1; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nextRoundNodes := make([]*node, 0, len(currentRoundNodes)/2)
		matchesInThisRound := 0

		for i := 0; i < len(currentRoundNodes); i += 2 {
			node1 := currentRoundNodes[i]
			node2 := currentRoundNodes[i+1]

			if node2.isBye {
				if node1.unitID == nil {
					return nil, fmt.Errorf("unexpected bye against an empty slot in round %d", r)
				}
				nextRoundNodes = append(nextRoundNodes, node1)
				continue
			}

			matchesInThisRound++
			currentMatchUID := fmt.Sprintf("R%dM%d", r, matchesInThisRound)
			bm := &BracketMatch{
				UID:          currentMatchUID,
				Round:        r,
				OrderInRound: matchesInThisRound,
			}
			feed(bm, node1, 1, byUID)
			feed(bm, node2, 2, byUID)

			byUID[currentMatchUID] = bm
			allGeneratedMatches = append(allGeneratedMatches, bm)
			nextRoundNodes = append(nextRoundNodes, &node{sourceMatchUID: &currentMatchUID})
		}
		currentRoundNodes = nextRoundNodes
	}

	sort.Slice(allGeneratedMatches, func(i, j int) bool {
		if allGeneratedMatches[i].Round != allGeneratedMatches[j].Round {
			return allGeneratedMatches[i].Round < allGeneratedMatches[j].Round
		}
		return allGeneratedMatches[i].OrderInRound < allGeneratedMatches[j].OrderInRound
	})

	return allGeneratedMatches, nil
}

// feed places a node into slot 1 or 2 of bm, linking the source match forward.
func feed(bm *BracketMatch, n *node, slot int, byUID map[string]*BracketMatch) {
	switch {
	case n.unitID != nil:
		if slot == 1 {
			bm.Unit1ID = n.unitID
		} else {
			bm.Unit2ID = n.unitID
		}
	case n.sourceMatchUID != nil:
		if slot == 1 {
			bm.SourceMatch1UID = n.sourceMatchUID
		} else {
			bm.SourceMatch2UID = n.sourceMatchUID
		}
		if src, ok := byUID[*n.sourceMatchUID]; ok {
			uid := bm.UID
			src.NextMatchUID = &uid
			src.NextSlot = slot
		}
	}
}

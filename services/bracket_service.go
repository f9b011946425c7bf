package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/pickleball-eventday/brackets"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/repositories"
	"github.com/Dosada05/pickleball-eventday/utils"
)

// buildMatches generates the match set of a drawn division and allocates
// match ids for it. Nothing is persisted here; the caller stages the
// result into the completing draw's transaction.
func (r *Runtime) buildMatches(ctx context.Context, div *models.Division, positions []int) ([]*models.Match, error) {
	generator, err := brackets.ForFormat(div.Format)
	if err != nil {
		return nil, err
	}

	params := brackets.GenerateBracketParams{
		Division:  div,
		Positions: positions,
	}
	generated, err := generator.GenerateBracket(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s bracket for division %d: %w", generator.GetName(), div.ID, err)
	}
	if len(generated) == 0 {
		return nil, fmt.Errorf("bracket generation resulted in no matches for %d units", len(positions))
	}

	ids, err := r.store.NextIDs(ctx, repositories.IDKindMatch, len(generated))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate match ids: %w", err)
	}

	bestOf := div.BestOf
	if bestOf < 1 {
		bestOf = 1
	}

	// First pass assigns ids, the second resolves forward links.
	uidToID := make(map[string]int, len(generated))
	matches := make([]*models.Match, 0, len(generated))
	for i, bm := range generated {
		uidToID[bm.UID] = ids[i]
		matches = append(matches, &models.Match{
			ID:           ids[i],
			EventID:      div.EventID,
			DivisionID:   div.ID,
			Round:        bm.Round,
			OrderInRound: bm.OrderInRound,
			Unit1ID:      bm.Unit1ID,
			Unit2ID:      bm.Unit2ID,
			Status:       models.MatchScheduled,
			BestOf:       bestOf,
			Games:        []*models.Game{},
		})
	}
	for i, bm := range generated {
		if bm.NextMatchUID == nil {
			continue
		}
		nextID, ok := uidToID[*bm.NextMatchUID]
		if !ok {
			return nil, fmt.Errorf("match %s links to unknown match %s", bm.UID, *bm.NextMatchUID)
		}
		matches[i].NextMatchID = utils.Ptr(nextID)
		matches[i].NextSlot = utils.Ptr(bm.NextSlot)
	}
	return matches, nil
}

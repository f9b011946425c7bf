package brackets

import (
	"context"
	"fmt"

	"github.com/Dosada05/pickleball-eventday/models"
)

type GenerateBracketParams struct {
	Division *models.Division
	// Positions holds unit ids in drawn order.
	Positions []int
}

// BracketMatch is a generated match before ids are allocated. Links between
// matches use UID until the caller persists them.
type BracketMatch struct {
	UID          string
	Round        int
	OrderInRound int

	Unit1ID *int
	Unit2ID *int

	SourceMatch1UID *string
	SourceMatch2UID *string

	NextMatchUID *string
	NextSlot     int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}

// ForFormat returns the generator of a division's bracket format.
func ForFormat(format models.BracketFormat) (BracketGenerator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported bracket format %q", format)
	}
}

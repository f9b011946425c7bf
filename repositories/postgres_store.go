package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type postgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

type eventRow struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	Policy    []byte    `db:"policy"`
	Queue     []byte    `db:"admission_queue"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type divisionRow struct {
	ID             int     `db:"id"`
	EventID        int     `db:"event_id"`
	Name           string  `db:"name"`
	TeamSize       int     `db:"team_size"`
	Format         string  `db:"format"`
	BestOf         int     `db:"best_of"`
	ScheduleStatus string  `db:"schedule_status"`
	Positions      []byte  `db:"positions"`
	Session        []byte  `db:"draw_session"`
	DrawArchiveURL *string `db:"draw_archive_url"`
}

type unitRow struct {
	ID            int    `db:"id"`
	DivisionID    int    `db:"division_id"`
	DisplayName   string `db:"display_name"`
	MemberNames   []byte `db:"member_names"`
	MemberUserIDs []byte `db:"member_user_ids"`
}

type gameRow struct {
	models.Game
	Unit1ClaimJSON []byte `db:"unit1_claim"`
	Unit2ClaimJSON []byte `db:"unit2_claim"`
}

type broadcastRow struct {
	EventID        int       `db:"event_id"`
	Scope          string    `db:"scope"`
	DivisionID     *int      `db:"division_id"`
	SequenceNumber uint64    `db:"sequence_number"`
	Kind           string    `db:"kind"`
	Payload        []byte    `db:"payload"`
	OccurredAt     time.Time `db:"occurred_at"`
}

// LoadEvent reads all state of an event. Independent tables are fetched in parallel.
func (s *postgresStore) LoadEvent(ctx context.Context, eventID int) (*EventData, error) {
	var er eventRow
	err := s.db.GetContext(ctx, &er, `
		SELECT id, name, status, policy, admission_queue, created_at, updated_at
		FROM events WHERE id = $1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event %d: %w", eventID, err)
	}
	event := &models.Event{
		ID:        er.ID,
		Name:      er.Name,
		Status:    models.EventStatus(er.Status),
		Policy:    models.DefaultSchedulingPolicy(),
		CreatedAt: er.CreatedAt,
		UpdatedAt: er.UpdatedAt,
	}
	if err := unmarshalJSONColumn(er.Policy, &event.Policy); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(er.Queue, &event.Queue); err != nil {
		return nil, err
	}

	data := &EventData{Event: event, Sequences: make(map[string]uint64)}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var rows []divisionRow
		if err := s.db.SelectContext(gCtx, &rows, `
			SELECT id, event_id, name, team_size, format, best_of, schedule_status,
			       positions, draw_session, draw_archive_url
			FROM divisions WHERE event_id = $1 ORDER BY id`, eventID); err != nil {
			return fmt.Errorf("failed to load divisions: %w", err)
		}
		for _, r := range rows {
			d := &models.Division{
				ID:             r.ID,
				EventID:        r.EventID,
				Name:           r.Name,
				TeamSize:       r.TeamSize,
				Format:         models.BracketFormat(r.Format),
				BestOf:         r.BestOf,
				ScheduleStatus: models.ScheduleStatus(r.ScheduleStatus),
				DrawArchiveURL: r.DrawArchiveURL,
			}
			if err := unmarshalJSONColumn(r.Positions, &d.Positions); err != nil {
				return err
			}
			if len(r.Session) > 0 && string(r.Session) != "null" {
				d.Session = &models.DrawSession{}
				if err := unmarshalJSONColumn(r.Session, d.Session); err != nil {
					return err
				}
			}
			data.Divisions = append(data.Divisions, d)
		}
		return nil
	})

	g.Go(func() error {
		var rows []unitRow
		if err := s.db.SelectContext(gCtx, &rows, `
			SELECT u.id, u.division_id, u.display_name, u.member_names, u.member_user_ids
			FROM units u JOIN divisions d ON d.id = u.division_id
			WHERE d.event_id = $1 ORDER BY u.id`, eventID); err != nil {
			return fmt.Errorf("failed to load units: %w", err)
		}
		for _, r := range rows {
			u := &models.Unit{ID: r.ID, DivisionID: r.DivisionID, DisplayName: r.DisplayName}
			if err := unmarshalJSONColumn(r.MemberNames, &u.MemberNames); err != nil {
				return err
			}
			if err := unmarshalJSONColumn(r.MemberUserIDs, &u.MemberUserIDs); err != nil {
				return err
			}
			data.Units = append(data.Units, u)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.db.SelectContext(gCtx, &data.Courts, `
			SELECT id, event_id, label, status, current_match_id
			FROM courts WHERE event_id = $1 ORDER BY id`, eventID); err != nil {
			return fmt.Errorf("failed to load courts: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		matches, err := s.loadMatches(gCtx, eventID)
		if err != nil {
			return err
		}
		data.Matches = matches
		return nil
	})

	g.Go(func() error {
		var rows []struct {
			Scope string `db:"scope"`
			Last  uint64 `db:"last"`
		}
		if err := s.db.SelectContext(gCtx, &rows, `
			SELECT scope, MAX(sequence_number) AS last
			FROM broadcast_events WHERE event_id = $1 GROUP BY scope`, eventID); err != nil {
			return fmt.Errorf("failed to load broadcast sequences: %w", err)
		}
		for _, r := range rows {
			data.Sequences[r.Scope] = r.Last
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("Error during parallel load of event %d: %v", eventID, err)
		return nil, err
	}
	return data, nil
}

func (s *postgresStore) loadMatches(ctx context.Context, eventID int) ([]*models.Match, error) {
	var matches []*models.Match
	if err := s.db.SelectContext(ctx, &matches, `
		SELECT id, event_id, division_id, round, order_in_round, unit1_id, unit2_id, status,
		       court_id, played_court_id, best_of, winner_unit_id, next_match_id, next_slot,
		       queued_at, started_at, completed_at
		FROM matches WHERE event_id = $1 ORDER BY id`, eventID); err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	var games []gameRow
	if err := s.db.SelectContext(ctx, &games, `
		SELECT g.id, g.match_id, g.game_number, g.unit1_score, g.unit2_score, g.unit1_claim,
		       g.unit2_claim, g.submitted_by, g.confirmed_by, g.is_disputed, g.confirmed
		FROM games g JOIN matches m ON m.id = g.match_id
		WHERE m.event_id = $1 ORDER BY g.match_id, g.game_number`, eventID); err != nil {
		return nil, fmt.Errorf("failed to load games: %w", err)
	}

	byID := make(map[int]*models.Match, len(matches))
	for _, m := range matches {
		m.Games = []*models.Game{}
		byID[m.ID] = m
	}
	for i := range games {
		r := &games[i]
		g := r.Game
		if err := unmarshalJSONColumn(r.Unit1ClaimJSON, &g.Unit1Claim); err != nil {
			return nil, err
		}
		if err := unmarshalJSONColumn(r.Unit2ClaimJSON, &g.Unit2Claim); err != nil {
			return nil, err
		}
		if m, ok := byID[g.MatchID]; ok {
			m.Games = append(m.Games, &g)
		}
	}
	return matches, nil
}

func (s *postgresStore) EventIDForDivision(ctx context.Context, divisionID int) (int, error) {
	var eventID int
	err := s.db.GetContext(ctx, &eventID, `SELECT event_id FROM divisions WHERE id = $1`, divisionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDivisionNotFound
	}
	return eventID, err
}

func (s *postgresStore) EventIDForGame(ctx context.Context, gameID int) (int, error) {
	var eventID int
	err := s.db.GetContext(ctx, &eventID, `
		SELECT m.event_id FROM games g JOIN matches m ON m.id = g.match_id WHERE g.id = $1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrGameNotFound
	}
	return eventID, err
}

func (s *postgresStore) NextIDs(ctx context.Context, kind IDKind, n int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	var seq string
	switch kind {
	case IDKindMatch:
		seq = "matches_id_seq"
	case IDKindGame:
		seq = "games_id_seq"
	default:
		return nil, fmt.Errorf("unknown id kind %q", kind)
	}
	var ids []int
	if err := s.db.SelectContext(ctx, &ids, `SELECT nextval($1::regclass) FROM generate_series(1, $2)`, seq, n); err != nil {
		return nil, fmt.Errorf("failed to allocate %d %s ids: %w", n, kind, err)
	}
	return ids, nil
}

// Commit writes a change set in one transaction.
func (s *postgresStore) Commit(ctx context.Context, cs ChangeSet) (txErr error) {
	if cs.Empty() {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				txErr = fmt.Errorf("%w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = handleCommitError(fmt.Errorf("failed to commit transaction: %w", cErr))
		}
	}()

	if cs.Event != nil {
		if err := updateEvent(ctx, tx, cs.Event); err != nil {
			return err
		}
	}
	for _, d := range cs.Divisions {
		if err := updateDivision(ctx, tx, d); err != nil {
			return err
		}
	}

	// Matches releasing a court are written before the ones taking it so the
	// court holder index never sees two holders.
	matches := slices.Clone(cs.Matches)
	slices.SortStableFunc(matches, func(a, b *models.Match) int {
		return holdRank(a) - holdRank(b)
	})
	for _, m := range matches {
		if err := upsertMatch(ctx, tx, m); err != nil {
			return handleCommitError(err)
		}
	}
	for _, c := range cs.Courts {
		if err := updateCourt(ctx, tx, c); err != nil {
			return err
		}
	}
	if cs.Broadcast != nil {
		if err := insertBroadcast(ctx, tx, cs.Broadcast); err != nil {
			return handleCommitError(err)
		}
	}
	return nil
}

func holdRank(m *models.Match) int {
	if m.CourtID != nil && m.Status.HoldsCourt() {
		return 1
	}
	return 0
}

func updateEvent(ctx context.Context, tx *sqlx.Tx, e *models.Event) error {
	policy, err := marshalJSONColumn(e.Policy)
	if err != nil {
		return err
	}
	queue, err := marshalJSONColumn(e.Queue)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE events SET status = $1, policy = $2, admission_queue = $3, updated_at = $4
		WHERE id = $5`, e.Status, policy, queue, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", e.ID, err)
	}
	return checkAffectedRows(res, ErrEventNotFound)
}

func updateDivision(ctx context.Context, tx *sqlx.Tx, d *models.Division) error {
	positions, err := marshalJSONColumn(d.Positions)
	if err != nil {
		return err
	}
	session, err := marshalJSONColumn(d.Session)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE divisions SET schedule_status = $1, positions = $2, draw_session = $3, draw_archive_url = $4
		WHERE id = $5`, d.ScheduleStatus, positions, session, d.DrawArchiveURL, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update division %d: %w", d.ID, err)
	}
	return checkAffectedRows(res, ErrDivisionNotFound)
}

func upsertMatch(ctx context.Context, tx *sqlx.Tx, m *models.Match) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO matches (id, event_id, division_id, round, order_in_round, unit1_id, unit2_id, status,
			court_id, played_court_id, best_of, winner_unit_id, next_match_id, next_slot,
			queued_at, started_at, completed_at)
		VALUES (:id, :event_id, :division_id, :round, :order_in_round, :unit1_id, :unit2_id, :status,
			:court_id, :played_court_id, :best_of, :winner_unit_id, :next_match_id, :next_slot,
			:queued_at, :started_at, :completed_at)
		ON CONFLICT (id) DO UPDATE SET
			unit1_id = EXCLUDED.unit1_id, unit2_id = EXCLUDED.unit2_id, status = EXCLUDED.status,
			court_id = EXCLUDED.court_id, played_court_id = EXCLUDED.played_court_id,
			winner_unit_id = EXCLUDED.winner_unit_id, queued_at = EXCLUDED.queued_at,
			started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at`, m)
	if err != nil {
		return fmt.Errorf("failed to upsert match %d: %w", m.ID, err)
	}
	for _, g := range m.Games {
		if err := upsertGame(ctx, tx, g); err != nil {
			return err
		}
	}
	return nil
}

func upsertGame(ctx context.Context, tx *sqlx.Tx, g *models.Game) error {
	c1, err := marshalJSONColumn(g.Unit1Claim)
	if err != nil {
		return err
	}
	c2, err := marshalJSONColumn(g.Unit2Claim)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (id, match_id, game_number, unit1_score, unit2_score, unit1_claim, unit2_claim,
			submitted_by, confirmed_by, is_disputed, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			unit1_score = EXCLUDED.unit1_score, unit2_score = EXCLUDED.unit2_score,
			unit1_claim = EXCLUDED.unit1_claim, unit2_claim = EXCLUDED.unit2_claim,
			submitted_by = EXCLUDED.submitted_by, confirmed_by = EXCLUDED.confirmed_by,
			is_disputed = EXCLUDED.is_disputed, confirmed = EXCLUDED.confirmed`,
		g.ID, g.MatchID, g.GameNumber, g.Unit1Score, g.Unit2Score, c1, c2,
		g.SubmittedBy, g.ConfirmedBy, g.IsDisputed, g.Confirmed)
	if err != nil {
		return fmt.Errorf("failed to upsert game %d: %w", g.ID, err)
	}
	return nil
}

func updateCourt(ctx context.Context, tx *sqlx.Tx, c *models.Court) error {
	res, err := tx.ExecContext(ctx, `UPDATE courts SET status = $1, current_match_id = $2 WHERE id = $3`,
		c.Status, c.CurrentMatchID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update court %d: %w", c.ID, err)
	}
	return checkAffectedRows(res, ErrCourtNotFound)
}

func insertBroadcast(ctx context.Context, tx *sqlx.Tx, ev *models.BroadcastEvent) error {
	payload, err := marshalJSONColumn(ev.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO broadcast_events (event_id, scope, division_id, sequence_number, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.EventID, ev.Scope(), ev.DivisionID, ev.SequenceNumber, ev.Kind, payload, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record broadcast event: %w", err)
	}
	return nil
}

func (s *postgresStore) ListBroadcasts(ctx context.Context, eventID int, scope string, after uint64, limit int) ([]models.BroadcastEvent, error) {
	var rows []broadcastRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT event_id, scope, division_id, sequence_number, kind, payload, occurred_at
		FROM broadcast_events
		WHERE event_id = $1 AND scope = $2 AND sequence_number > $3
		ORDER BY sequence_number LIMIT $4`, eventID, scope, after, limit); err != nil {
		return nil, fmt.Errorf("failed to list broadcast events: %w", err)
	}
	events := make([]models.BroadcastEvent, 0, len(rows))
	for _, r := range rows {
		ev := models.BroadcastEvent{
			EventID:        r.EventID,
			DivisionID:     r.DivisionID,
			SequenceNumber: r.SequenceNumber,
			Kind:           models.BroadcastKind(r.Kind),
			OccurredAt:     r.OccurredAt,
		}
		if err := unmarshalJSONColumn(r.Payload, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

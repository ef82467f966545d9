package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/Dosada05/tournament-engine/scoring"
	"github.com/cenkalti/backoff/v4"
)

const leaderboardSaveAttempts = 3

type LeaderboardService interface {
	// ApplyMatch folds a completed state into its participant's standing.
	// It is not idempotent.
	ApplyMatch(ctx context.Context, repos *repositories.Set, state *models.MatchState) (*models.Leaderboard, error)
	// RevertMatch subtracts exactly what ApplyMatch added for the same
	// snapshot of state.
	RevertMatch(ctx context.Context, repos *repositories.Set, state *models.MatchState) (*models.Leaderboard, error)
	Standings(ctx context.Context, scope Scope, tournamentID string) ([]*models.Leaderboard, error)
}

type leaderboardService struct {
	logger *slog.Logger
}

func NewLeaderboardService(logger *slog.Logger) LeaderboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &leaderboardService{logger: logger}
}

func (s *leaderboardService) ApplyMatch(ctx context.Context, repos *repositories.Set, state *models.MatchState) (*models.Leaderboard, error) {
	return s.fold(ctx, repos, state, applyToBoard)
}

func (s *leaderboardService) RevertMatch(ctx context.Context, repos *repositories.Set, state *models.MatchState) (*models.Leaderboard, error) {
	return s.fold(ctx, repos, state, revertFromBoard)
}

// fold reads, changes and writes the board, retrying when another writer
// saved it in between. Other failures end the fold at once.
func (s *leaderboardService) fold(ctx context.Context, repos *repositories.Set, state *models.MatchState, change func(*models.Leaderboard, *models.MatchState)) (*models.Leaderboard, error) {
	var board *models.Leaderboard
	attempt := 0
	save := func() error {
		attempt++
		b, err := repos.Leaderboards.Get(ctx, state.TournamentID, state.ParticipantID)
		if errors.Is(err, repositories.ErrLeaderboardNotFound) {
			b = models.NewLeaderboard(state.TournamentID, state.ParticipantID, state.ParticipantName)
		} else if err != nil {
			return backoff.Permanent(fmt.Errorf("loading leaderboard of %s: %w", state.ParticipantID, err))
		}

		change(b, state)

		if err := repos.Leaderboards.Save(ctx, b); err != nil {
			if !errors.Is(err, repositories.ErrVersionConflict) {
				return backoff.Permanent(fmt.Errorf("saving leaderboard of %s: %w", state.ParticipantID, err))
			}
			s.logger.Debug("leaderboard save conflict", "participant", state.ParticipantID, "attempt", attempt)
			return fmt.Errorf("saving leaderboard of %s: %w", state.ParticipantID, err)
		}
		board = b
		return nil
	}

	if err := backoff.Retry(save, retryBackOff(ctx, leaderboardSaveAttempts)); err != nil {
		return nil, translateRepoError(err)
	}
	return board, nil
}

func (s *leaderboardService) Standings(ctx context.Context, scope Scope, tournamentID string) ([]*models.Leaderboard, error) {
	if err := requireReader(scope.Caller); err != nil {
		return nil, err
	}
	if trimmed(tournamentID) == "" {
		return nil, fmt.Errorf("%w: tournament id is required", ErrValidationFailed)
	}
	boards, err := scope.Repos.Leaderboards.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	scoring.SortStandings(boards)
	return boards, nil
}

func formEntryOf(state *models.MatchState) models.FormEntry {
	return models.FormEntry{
		StateID:     state.ID,
		MatchNumber: state.MatchNumber,
		Placement:   derefInt(state.Placement),
		Kills:       state.TotalKills,
		Points:      state.Points,
	}
}

func applyToBoard(b *models.Leaderboard, state *models.MatchState) {
	entry := formEntryOf(state)
	if state.ParticipantName != "" {
		b.ParticipantName = state.ParticipantName
	}

	b.TotalKills += state.TotalKills
	b.TotalPoints = scoring.Round2(b.TotalPoints + state.Points)
	b.MatchesPlayed++
	b.Wins += boolCount(scoring.IsWin(entry.Placement))
	b.Top3 += boolCount(scoring.IsTop(entry.Placement, 3))
	b.Top5 += boolCount(scoring.IsTop(entry.Placement, 5))

	for _, p := range state.Players {
		row := playerRow(b, p.PlayerID, p.Name)
		row.Kills += p.Kills
		row.KillPoints = scoring.Round2(row.KillPoints + p.KillPoints)
		row.PlacementPoints = scoring.Round2(row.PlacementPoints + p.PlacementPoints)
		row.Points = scoring.Round2(row.Points + playerMatchPoints(p))
		row.MatchesPlayed++
	}

	b.History = append(b.History, entry)
	recomputeDerived(b)
}

func revertFromBoard(b *models.Leaderboard, state *models.MatchState) {
	entry := formEntryOf(state)

	b.TotalKills -= state.TotalKills
	b.TotalPoints = scoring.Round2(b.TotalPoints - state.Points)
	b.MatchesPlayed--
	b.Wins -= boolCount(scoring.IsWin(entry.Placement))
	b.Top3 -= boolCount(scoring.IsTop(entry.Placement, 3))
	b.Top5 -= boolCount(scoring.IsTop(entry.Placement, 5))

	for _, p := range state.Players {
		row := playerRow(b, p.PlayerID, p.Name)
		row.Kills -= p.Kills
		row.KillPoints = scoring.Round2(row.KillPoints - p.KillPoints)
		row.PlacementPoints = scoring.Round2(row.PlacementPoints - p.PlacementPoints)
		row.Points = scoring.Round2(row.Points - playerMatchPoints(p))
		row.MatchesPlayed--
	}
	players := b.Players[:0]
	for _, row := range b.Players {
		if row.MatchesPlayed > 0 {
			players = append(players, row)
		}
	}
	b.Players = players

	for i := len(b.History) - 1; i >= 0; i-- {
		if b.History[i].StateID == entry.StateID {
			b.History = append(b.History[:i], b.History[i+1:]...)
			break
		}
	}
	recomputeDerived(b)
}

// recomputeDerived rebuilds the extrema and the recent form from History.
func recomputeDerived(b *models.Leaderboard) {
	b.BestPlacement = 0
	b.HighestKills = 0
	for _, h := range b.History {
		if h.Placement > 0 && (b.BestPlacement == 0 || h.Placement < b.BestPlacement) {
			b.BestPlacement = h.Placement
		}
		if h.Kills > b.HighestKills {
			b.HighestKills = h.Kills
		}
	}

	n := min(len(b.History), models.RecentFormSize)
	form := make([]models.FormEntry, 0, n)
	for i := len(b.History) - 1; i >= len(b.History)-n; i-- {
		form = append(form, b.History[i])
	}
	b.RecentForm = form
}

func playerRow(b *models.Leaderboard, playerID, name string) *models.PlayerTotals {
	for i := range b.Players {
		if b.Players[i].PlayerID == playerID {
			if name != "" {
				b.Players[i].Name = name
			}
			return &b.Players[i]
		}
	}
	b.Players = append(b.Players, models.PlayerTotals{PlayerID: playerID, Name: name})
	return &b.Players[len(b.Players)-1]
}

func playerMatchPoints(p models.PlayerStat) float64 {
	return scoring.Round2(p.KillPoints + p.PlacementPoints)
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package analytics summarises the moderation log for /modstats and the
// dashboard.
package analytics

import (
	"context"
	"sort"
	"time"

	"guildwarden/internal/storage"
)

type Store interface {
	ListModActions(ctx context.Context, guildID string, since time.Time) ([]storage.ModAction, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

type ModeratorCount struct {
	ModeratorID string `json:"moderatorId"`
	Count       int    `json:"count"`
}

type Report struct {
	Since         time.Time        `json:"since"`
	Total         int              `json:"total"`
	ByAction      map[string]int   `json:"byAction"`
	ByDay         map[string]int   `json:"byDay"`
	TopModerators []ModeratorCount `json:"topModerators"`
	// Automatic counts actions taken by AutoMod or escalation rather than a
	// moderator.
	Automatic int `json:"automatic"`
}

const topModerators = 5

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	actions, err := s.store.ListModActions(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Since:    since,
		ByAction: make(map[string]int),
		ByDay:    make(map[string]int),
	}
	moderators := make(map[string]int)
	for _, action := range actions {
		report.Total++
		report.ByAction[action.Action]++
		report.ByDay[action.CreatedAt.UTC().Format("2006-01-02")]++
		if action.ModeratorID == "" {
			report.Automatic++
			continue
		}
		moderators[action.ModeratorID]++
	}

	report.TopModerators = make([]ModeratorCount, 0, len(moderators))
	for id, count := range moderators {
		report.TopModerators = append(report.TopModerators, ModeratorCount{ModeratorID: id, Count: count})
	}
	sort.Slice(report.TopModerators, func(i, j int) bool {
		a, b := report.TopModerators[i], report.TopModerators[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ModeratorID < b.ModeratorID
	})
	if len(report.TopModerators) > topModerators {
		report.TopModerators = report.TopModerators[:topModerators]
	}
	return report, nil
}

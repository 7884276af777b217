package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/nishinokaede/yunaMessage/internal/groups"
)

// TokenOutcome records the refresh result for one group.
type TokenOutcome struct {
	OK     bool
	Detail string
}

// TokenRunResult maps group ids to their refresh outcomes for one run.
type TokenRunResult map[string]TokenOutcome

// NewTokenRefreshTask creates the scheduled task that refreshes every
// group's access token.
func NewTokenRefreshTask(deps Deps) TaskFunc {
	return func(ctx context.Context) error {
		result := RefreshTokens(ctx, deps)

		failures := 0
		for _, outcome := range result {
			if !outcome.OK {
				failures++
			}
		}
		deps.Logger.InfoContext(ctx, "Token refresh run finished",
			"groups", len(result), "failures", failures)
		return nil
	}
}

// RefreshTokens exchanges each configured group's refresh credential for a
// new access token and appends it to the token log. A failure in one group
// never aborts the others; every group gets an outcome entry.
func RefreshTokens(ctx context.Context, deps Deps) TokenRunResult {
	log := deps.Logger.With("task", "get_token")
	startTime := time.Now()

	configs := groups.Load(deps.Config.Storage.GroupsDir, log)
	result := make(TokenRunResult, len(configs))

	for _, grp := range sortedGroupIDs(configs) {
		cfg := configs[grp]

		token, err := deps.Client.RefreshToken(ctx, grp, cfg.RefreshToken)
		if err != nil {
			log.WarnContext(ctx, "Token refresh failed", "grp", grp, "error", err)
			result[grp] = TokenOutcome{OK: false, Detail: err.Error()}
			continue
		}

		if err := deps.Store.SaveToken(ctx, grp, token); err != nil {
			log.ErrorContext(ctx, "Failed to persist token", "grp", grp, "error", err)
			result[grp] = TokenOutcome{OK: false, Detail: err.Error()}
			continue
		}

		log.InfoContext(ctx, "Token refreshed", "grp", grp)
		result[grp] = TokenOutcome{OK: true, Detail: "token refreshed"}
	}

	log.DebugContext(ctx, "Token refresh pass complete", "duration", time.Since(startTime))
	return result
}

func sortedGroupIDs(configs map[string]groups.Group) []string {
	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

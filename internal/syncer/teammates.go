package syncer

import (
	"context"

	"go.uber.org/zap"

	"frontsync/internal/frontapi"
	"frontsync/internal/model"
	"frontsync/internal/upsert"
)

type TeammateSync struct {
	client *frontapi.Client
	engine *upsert.Engine[model.Teammate, *model.Teammate]
	logger *zap.Logger
}

func NewTeammateSync(d Deps) *TeammateSync {
	return &TeammateSync{
		client: d.Client,
		engine: upsert.New[model.Teammate](string(ResourceTeammates), d.Store.Teammates(), d.Logger),
		logger: d.Logger,
	}
}

func (s *TeammateSync) Type() ResourceType { return ResourceTeammates }

func (s *TeammateSync) Sync(ctx context.Context, scope Scope) Report {
	t := newTally(ResourceTeammates, scope.Mode)
	res := s.client.Teammates().Each(ctx, func(page []frontapi.Teammate) (bool, error) {
		for _, tm := range page {
			tm := tm
			out := s.engine.Upsert(ctx, tm.ID, tm.UpdatedAt, func(rec *model.Teammate, existing bool) error {
				rec.Email = lower(tm.Email)
				rec.Username = sanitize(tm.Username)
				rec.FirstName = sanitize(tm.FirstName)
				rec.LastName = sanitize(tm.LastName)
				rec.IsAdmin = tm.IsAdmin
				rec.IsAvailable = tm.IsAvailable
				rec.IsBlocked = tm.IsBlocked
				rec.Metadata = tm.Extra
				return nil
			})
			if out.Action == upsert.ActionCreated {
				s.logger.Debug("New teammate", zap.String("external_id", tm.ID), zap.String("name", out.Record.DisplayName()))
			}
			record(t, tm.ID, out)
		}
		return true, nil
	})
	t.fetchFailed(res.Err)
	return t.done()
}

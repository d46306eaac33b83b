package service

import (
	"fmt"
	"time"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/internal/core/schema"
	"approval-gateway/internal/store"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

// NotificationDecoder turns push payloads into pending actions.
type NotificationDecoder struct {
	repo  *store.Approvals
	clock func() time.Time
	log   zerolog.Logger
}

var _ ports.NotificationService = (*NotificationDecoder)(nil)

func NewNotificationDecoder(repo *store.Approvals, log zerolog.Logger) *NotificationDecoder {
	return &NotificationDecoder{
		repo:  repo,
		clock: time.Now,
		log:   logger.Component(log, "notifications"),
	}
}

// Decode validates raw leniently, stamps it as pending and upserts it.
// A payload for an id that was already decided is a no-op reported as
// ACT_004. Malformed input never reaches the repository.
func (d *NotificationDecoder) Decode(raw []byte) (action domain.ApprovalAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("notification decode panicked")
			action = domain.ApprovalAction{}
			err = apperror.ErrValidation(fmt.Errorf("undecodable payload: %v", r))
		}
	}()

	payload, err := schema.ValidateNotification(raw)
	if err != nil {
		d.log.Warn().Err(err).Msg("push payload rejected")
		return domain.ApprovalAction{}, apperror.ErrValidation(err)
	}
	if payload.KindCoerced() {
		d.log.Info().Str("action_id", payload.ActionID).Str("kind", payload.Action).Msg("unknown action kind shown as other")
	}

	action = payload.ToAction(d.clock())
	if err := schema.ValidateAction(action); err != nil {
		return domain.ApprovalAction{}, apperror.ErrValidation(err)
	}

	if !d.repo.InsertOrReplacePending(action) {
		d.log.Debug().Str("action_id", action.ID).Msg("push for decided action ignored")
		return domain.ApprovalAction{}, apperror.ErrDuplicateDecided(action.ID)
	}

	d.log.Info().Str("action_id", action.ID).Str("kind", string(action.Kind)).Msg("action received by push")
	return action, nil
}

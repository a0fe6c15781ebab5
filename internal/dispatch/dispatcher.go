// Package dispatch normalizes abstract commands into pool calls: validation,
// kind-to-operation mapping, panic containment, and action-log emission on
// confirmed success.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/pool"
)

// timeNow is swappable in tests.
var timeNow = time.Now

// Executor is the pool surface the dispatcher drives.
type Executor interface {
	Execute(ctx context.Context, accountID string, fn func(context.Context, pool.AccountSession) (any, error)) (any, error)
}

// Dispatcher turns raw command requests into uniform outcomes. No error or
// panic from the layers beneath ever crosses its boundary.
type Dispatcher struct {
	exec     Executor
	recorder schemas.Recorder
	logger   *zap.Logger
}

// New builds a dispatcher. A nil recorder disables action-log emission.
func New(exec Executor, recorder schemas.Recorder, logger *zap.Logger) *Dispatcher {
	if recorder == nil {
		recorder = schemas.NopRecorder{}
	}
	return &Dispatcher{exec: exec, recorder: recorder, logger: logger.Named("dispatch")}
}

// Dispatch validates the request, routes it to the owning session, and
// returns a uniform outcome echoing the command. On confirmed success of a
// mutating action exactly one action-log row is emitted; on failure, none.
func (d *Dispatcher) Dispatch(ctx context.Context, req schemas.CommandRequest) (out schemas.Outcome) {
	cmd, failure := validate(req)
	if failure != nil {
		echo := &schemas.Command{
			AccountID:     req.AccountID,
			Kind:          req.Kind,
			Content:       req.Content,
			TargetAccount: req.Target,
		}
		return schemas.Outcome{Failure: failure, Command: echo}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered panic during command execution.",
				zap.String("account_id", cmd.AccountID), zap.String("kind", string(cmd.Kind)), zap.Any("panic", r))
			out = schemas.Outcome{
				Failure: schemas.NewFailure(schemas.FailInternal, cmd.AccountID, string(cmd.Kind),
					fmt.Sprintf("panic: %v", r)),
				Command: cmd,
			}
		}
	}()

	data, err := d.exec.Execute(ctx, cmd.AccountID, func(ctx context.Context, sess pool.AccountSession) (any, error) {
		payload, rec, err := runAction(ctx, sess, cmd)
		if err != nil {
			return nil, err
		}
		d.emit(ctx, rec)
		return payload, nil
	})
	if err != nil {
		return schemas.Outcome{
			Failure: schemas.FailureFrom(err, cmd.AccountID, string(cmd.Kind)),
			Command: cmd,
		}
	}
	return schemas.Outcome{OK: true, Data: data, Command: cmd}
}

// validate turns a raw request into an executable command, or a validation
// failure.
func validate(req schemas.CommandRequest) (*schemas.Command, *schemas.Failure) {
	op := string(req.Kind)
	if !req.Kind.Valid() {
		return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op,
			fmt.Sprintf("unsupported action kind %q", req.Kind))
	}
	if req.AccountID == "" {
		return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op,
			"missing acting account id")
	}

	cmd := &schemas.Command{
		AccountID: req.AccountID,
		Kind:      req.Kind,
		Content:   req.Content,
	}
	switch req.Kind {
	case schemas.ActionPost:
		if req.Content == "" {
			return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op,
				"post requires content")
		}
	case schemas.ActionComment:
		if req.Content == "" {
			return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op,
				"comment requires content")
		}
		fallthrough
	case schemas.ActionRepost, schemas.ActionLike:
		ref, err := schemas.ParseItemRef(req.Target)
		if err != nil {
			return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op, err.Error())
		}
		cmd.TargetRef = &ref
	case schemas.ActionFollow, schemas.ActionUnfollow:
		if req.Target == "" {
			return nil, schemas.NewFailure(schemas.FailValidation, req.AccountID, op,
				"missing target account id")
		}
		cmd.TargetAccount = req.Target
	}
	return cmd, nil
}

// runAction maps the command kind onto the session operation and assembles
// the action-log row describing the confirmed result.
func runAction(ctx context.Context, sess pool.AccountSession, cmd *schemas.Command) (any, schemas.ActionRecord, error) {
	rec := schemas.ActionRecord{
		Kind:      cmd.Kind,
		AccountID: cmd.AccountID,
		Content:   cmd.Content,
	}

	switch cmd.Kind {
	case schemas.ActionPost:
		receipt, err := sess.Post(ctx, cmd.Content)
		if err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = receipt.PostedAt
		rec.TargetRef = receipt.Ref.ItemID
		return receipt, rec, nil

	case schemas.ActionRepost:
		receipt, err := sess.Repost(ctx, *cmd.TargetRef, cmd.Content)
		if err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = receipt.DoneAt
		rec.TargetRef = receipt.TargetRef.String()
		rec.TargetText = receipt.TargetText
		return receipt, rec, nil

	case schemas.ActionComment:
		receipt, err := sess.Comment(ctx, *cmd.TargetRef, cmd.Content)
		if err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = receipt.DoneAt
		rec.TargetRef = receipt.TargetRef.String()
		rec.TargetText = receipt.TargetText
		return receipt, rec, nil

	case schemas.ActionLike:
		receipt, err := sess.Like(ctx, *cmd.TargetRef)
		if err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = receipt.DoneAt
		rec.TargetRef = receipt.TargetRef.String()
		rec.TargetText = receipt.TargetText
		return receipt, rec, nil

	case schemas.ActionFollow:
		if err := sess.Follow(ctx, cmd.TargetAccount); err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = timeNow()
		rec.TargetRef = cmd.TargetAccount
		return true, rec, nil

	case schemas.ActionUnfollow:
		if err := sess.Unfollow(ctx, cmd.TargetAccount); err != nil {
			return nil, rec, err
		}
		rec.ActorName = sess.DisplayName()
		rec.OccurredAt = timeNow()
		rec.TargetRef = cmd.TargetAccount
		return true, rec, nil
	}
	return nil, rec, fmt.Errorf("unreachable action kind %q", cmd.Kind)
}

// emit writes one action-log row. Recording is best-effort: a log failure
// never fails the already-confirmed action.
func (d *Dispatcher) emit(ctx context.Context, rec schemas.ActionRecord) {
	if err := d.recorder.Record(ctx, rec); err != nil {
		d.logger.Warn("Action log emission failed.",
			zap.String("account_id", rec.AccountID), zap.String("kind", string(rec.Kind)), zap.Error(err))
	}
}

package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/tailscale/accessbot/internal/chat"
)

// State is the position of a request in the approval flow.
type State string

const (
	StateSubmitted       State = "submitted"
	StateAutoApproved    State = "auto_approved"
	StatePendingApproval State = "pending_approval"
	StateDecided         State = "decided"
	StateNotified        State = "notified"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// DeviceAPI is the device-management call the state machine makes on an
// approved request.
type DeviceAPI interface {
	SetDeviceAttribute(ctx context.Context, nodeID, attribute string, value bool, expiry time.Time, comment string) error
}

// Renderer builds the chat payloads the state machine sends. Rendering
// is platform-specific and lives outside this package.
type Renderer interface {
	// ApprovalPrompt is the message asking the approver to decide,
	// carrying the approve/deny actions.
	ApprovalPrompt(a Access) chat.Message

	// ApprovalDecided is the replacement for the prompt once decided.
	ApprovalDecided(a Access, approved bool) chat.Message

	// DecisionNotice is the message posted to the requester and the
	// profile's notify channel.
	DecisionNotice(a Access, approved bool, until time.Time) chat.Message
}

// Engine drives a single access request from submission to completion.
// It holds no per-request state: each invocation carries the Access
// record, and cross-invocation idempotency is the workflow engine's.
type Engine struct {
	profiles []Profile
	chat     chat.Client
	api      DeviceAPI
	workflow chat.Completer
	render   Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new approval engine
func NewEngine(profiles []Profile, chatClient chat.Client, api DeviceAPI, workflow chat.Completer, render Renderer, logger *slog.Logger) *Engine {
	return &Engine{
		profiles: profiles,
		chat:     chatClient,
		api:      api,
		workflow: workflow,
		render:   render,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit runs the submission step for an access request. A self-approval
// without confirmation short-circuits: the grant fires immediately, no
// approver prompt is ever materialized, and the execution completes. Any
// other request posts the approval prompt and leaves the execution
// incomplete, pending the decision callback.
func (e *Engine) Submit(ctx context.Context, executionID string, a Access) (State, error) {
	if a.SelfApproval() && !a.Profile.ConfirmSelfApproval {
		e.logger.Info("Self-approval, skipping prompt",
			"requester", a.Requester,
			"attribute", a.Profile.Attribute)

		if err := e.decide(ctx, a, true); err != nil {
			return StateFailed, err
		}
		if err := e.workflow.CompleteSuccess(ctx, executionID); err != nil {
			return StateFailed, fmt.Errorf("completing execution: %w", err)
		}
		return StateAutoApproved, nil
	}

	_, err := e.chat.PostMessage(ctx, a.Approver.UserID, e.render.ApprovalPrompt(a))
	if err != nil {
		return StateFailed, fmt.Errorf("sending message to approver: %w", err)
	}

	e.logger.Info("Approval prompt sent",
		"requester", a.Requester,
		"approver", a.Approver.UserID,
		"attribute", a.Profile.Attribute)

	return StatePendingApproval, nil
}

// Decide runs the decision callback for a pending request: notify,
// grant on approval, update the approver's prompt to its decided state,
// and signal completion exactly once. The Access record is the snapshot
// captured at submission; only its profile is re-validated against
// current configuration.
func (e *Engine) Decide(ctx context.Context, executionID string, a Access, approved bool, prompt chat.MessageRef) error {
	// The profile may have been edited or removed between submission
	// and decision. Refuse to grant against configuration that no
	// longer exists.
	if _, err := FindProfile(e.profiles, a.Profile.Attribute); err != nil {
		return fmt.Errorf("validating profile at decision time: %w", err)
	}

	if err := e.decide(ctx, a, approved); err != nil {
		return err
	}

	if err := e.chat.UpdateMessage(ctx, prompt, e.render.ApprovalDecided(a, approved)); err != nil {
		return fmt.Errorf("updating approver message: %w", err)
	}

	if err := e.workflow.CompleteSuccess(ctx, executionID); err != nil {
		return fmt.Errorf("completing execution: %w", err)
	}

	return nil
}

// decide posts the decision notices and, on approval, fires the grant.
// Notices go out concurrently to all targets; any failure surfaces as a
// step error and the grant is never reached. Nothing already sent is
// rolled back: chat notifications are not reversible.
func (e *Engine) decide(ctx context.Context, a Access, approved bool) error {
	// The grant comment wants human-readable names. Start the lookups
	// now and join them only if the grant fires; failures degrade to
	// empty names.
	requesterCh := e.lookupUser(ctx, a.Requester)
	approverCh := e.lookupUser(ctx, a.Approver.UserID)

	until := a.Expiry(e.now())
	notice := e.render.DecisionNotice(a, approved, until)

	targets := []string{a.Requester}
	if a.Profile.NotifyChannel != "" {
		targets = append(targets, a.Profile.NotifyChannel)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			if _, err := e.chat.PostMessage(gctx, target, notice); err != nil {
				return fmt.Errorf("sending message to %s: %w", target, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !approved {
		e.logger.Info("Access request denied",
			"requester", a.Requester,
			"approver", a.Approver.UserID,
			"attribute", a.Profile.Attribute)
		return nil
	}

	comment := grantComment(<-requesterCh, <-approverCh, a.Reason)
	if err := e.api.SetDeviceAttribute(ctx, a.Device.NodeID, a.Profile.Attribute, true, until, comment); err != nil {
		return fmt.Errorf("granting device attribute: %w", err)
	}

	e.logger.Info("Access request approved",
		"requester", a.Requester,
		"approver", a.Approver.UserID,
		"attribute", a.Profile.Attribute,
		"node_id", a.Device.NodeID,
		"until", until)

	return nil
}

// lookupUser fetches user info without blocking the caller. The result
// channel always yields exactly once; a failed lookup yields nil.
func (e *Engine) lookupUser(ctx context.Context, userID string) <-chan *chat.User {
	ch := make(chan *chat.User, 1)
	go func() {
		user, err := e.chat.UserInfo(ctx, userID)
		if err != nil {
			e.logger.Error("Error loading user info", "user_id", userID, "error", err)
			ch <- nil
			return
		}
		ch <- user
	}()
	return ch
}

// maxCommentLen is the device API's limit on audit comments.
const maxCommentLen = 200

// grantComment builds the audit comment recorded against the device
// attribute, truncated to the API limit. The cut backs off to a rune
// boundary so non-ASCII names and reasons never produce invalid UTF-8.
func grantComment(requester, approver *chat.User, reason string) string {
	comment := fmt.Sprintf("Tailscale Access Slackbot: request from %s approved by %s",
		userRef(requester), userRef(approver))
	if reason != "" {
		comment += "\nReason: " + reason
	}
	if len(comment) > maxCommentLen {
		cut := maxCommentLen
		for cut > 0 && !utf8.RuneStart(comment[cut]) {
			cut--
		}
		comment = comment[:cut]
	}
	return comment
}

// userRef formats a user for the audit comment, preferring the real
// name with the handle in parentheses.
func userRef(u *chat.User) string {
	if u == nil || u.Name == "" {
		return ""
	}
	if u.RealName != "" {
		return u.RealName + " (" + u.Name + ")"
	}
	return u.Name
}

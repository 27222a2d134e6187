package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailscale/accessbot/internal/access"
	"github.com/tailscale/accessbot/internal/chat"
	"github.com/tailscale/accessbot/internal/idgen"
	"github.com/tailscale/accessbot/internal/tailscale"
)

// ErrNotConfigured is returned on paths that need device API
// credentials when none are present.
var ErrNotConfigured = errors.New("device API credentials are not configured")

// Config holds the bot's static configuration
type Config struct {
	Profiles      []access.Profile
	WebhookSecret string

	// Configured reports whether device API credentials are present.
	// When false, the request form degrades to a warning view and no
	// network call is attempted.
	Configured bool
}

// Bot dispatches chat interactions to the approval engine and the
// device API.
type Bot struct {
	config Config
	engine *access.Engine
	ts     *tailscale.Client
	chat   chat.Client
	logger *slog.Logger
}

// New creates a new bot. ts may be nil when credentials are absent.
func New(config Config, engine *access.Engine, ts *tailscale.Client, chatClient chat.Client, logger *slog.Logger) *Bot {
	return &Bot{
		config: config,
		engine: engine,
		ts:     ts,
		chat:   chatClient,
		logger: logger,
	}
}

// HandleRequestOpen opens the request form for a new workflow
// execution, or the not-configured warning when credentials are absent.
func (b *Bot) HandleRequestOpen(ctx context.Context, in *Interaction) (any, error) {
	view := NotConfiguredView()
	if b.config.Configured {
		view = RequestView(ctx, b.chat, b.config.Profiles, in.User, in.Form)
	}

	if _, err := b.chat.OpenView(ctx, in.TriggerID, view); err != nil {
		return nil, fmt.Errorf("opening view: %w", err)
	}

	return map[string]any{"completed": false}, nil
}

// HandleInteraction routes a callback to its handler by action tag
func (b *Bot) HandleInteraction(ctx context.Context, in *Interaction) (any, error) {
	action := in.Action()

	b.logger.Debug("Handling interaction",
		"type", in.Type,
		"action", action.String(),
		"execution_id", in.ExecutionID)

	switch action {
	case ActionApprove, ActionDeny:
		return b.handleDecision(ctx, in, action == ActionApprove)
	case ActionProfileChanged:
		return b.handleProfileChanged(ctx, in)
	case ActionDeviceQuery:
		return b.handleDeviceQuery(ctx, in)
	case ActionFormSubmit:
		return b.handleFormSubmit(ctx, in)
	}

	return nil, fmt.Errorf("unknown action %q", in.ActionID)
}

// handleDecision is the approve/deny button callback on a pending
// request. The Access record rides in the interaction payload, captured
// at submission time.
func (b *Bot) handleDecision(ctx context.Context, in *Interaction, approved bool) (any, error) {
	// A decision can arrive for a request submitted before the
	// credentials went away; without them there is no device API to
	// grant against.
	if !b.config.Configured {
		return nil, ErrNotConfigured
	}

	if in.Access == nil {
		return nil, errors.New("interaction carries no access request")
	}

	if err := b.engine.Decide(ctx, in.ExecutionID, *in.Access, approved, in.Message); err != nil {
		return nil, err
	}

	return map[string]any{"completed": true}, nil
}

// handleProfileChanged rebuilds the form so duration and approver
// inputs follow the newly selected profile.
func (b *Bot) handleProfileChanged(ctx context.Context, in *Interaction) (any, error) {
	view := NotConfiguredView()
	if b.config.Configured {
		view = RequestView(ctx, b.chat, b.config.Profiles, in.User, in.Form)
	}

	if err := b.chat.UpdateView(ctx, in.View, view); err != nil {
		return nil, fmt.Errorf("updating view: %w", err)
	}

	return map[string]any{"ok": true}, nil
}

// handleDeviceQuery answers the device autocomplete. The requester's
// own devices are listed first; lookup failures degrade to a warning
// option rather than an error response.
func (b *Bot) handleDeviceQuery(ctx context.Context, in *Interaction) (any, error) {
	if !b.config.Configured {
		return DeviceErrorOptions(ErrNotConfigured), nil
	}

	// The email lookup and the device list are independent; issue them
	// concurrently and join below.
	emailCh := make(chan string, 1)
	go func() {
		user, err := b.chat.UserInfo(ctx, in.User)
		if err != nil {
			b.logger.Error("Error loading user email to filter devices", "user_id", in.User, "error", err)
			emailCh <- ""
			return
		}
		emailCh <- user.Email
	}()

	devices, err := b.ts.Devices(ctx)
	if err != nil {
		b.logger.Error("Error loading devices", "error", err)
		return DeviceErrorOptions(err), nil
	}

	matched := access.FilterDevices(devices, in.Value)
	own := access.OwnDevices(matched, <-emailCh)

	return DeviceOptionGroups(own, access.TopDevices(matched)), nil
}

// handleFormSubmit validates the submitted form and starts the approval
// flow. Validation failures return field-level errors to the form and
// never reach the network layer.
func (b *Bot) handleFormSubmit(ctx context.Context, in *Interaction) (any, error) {
	if !b.config.Configured {
		return nil, ErrNotConfigured
	}

	a, fieldErrs := access.ValidateSubmission(ctx, b.config.Profiles, in.User, in.Submission(), b.chat)
	if fieldErrs != nil {
		return map[string]any{
			"response_action": "errors",
			"errors":          fieldErrs,
		}, nil
	}

	// Snapshot the device details for the approver's benefit. The
	// request proceeds on the bare node id if the lookup fails.
	if device, err := b.ts.Device(ctx, a.Device.NodeID); err != nil {
		b.logger.Error("Error fetching device", "node_id", a.Device.NodeID, "error", err)
	} else {
		a.Device = access.DeviceRef{
			NodeID:    a.Device.NodeID,
			Name:      device.Name,
			Addresses: device.Addresses,
			Tags:      device.Tags,
			User:      device.User,
			OS:        device.OS,
		}
	}

	requestID := idgen.NewRequest()
	b.logger.Info("Access request submitted",
		"request_id", requestID,
		"requester", a.Requester,
		"attribute", a.Profile.Attribute,
		"node_id", a.Device.NodeID,
		"duration_seconds", a.DurationSeconds)

	state, err := b.engine.Submit(ctx, in.ExecutionID, *a)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"completed": state == access.StateAutoApproved,
		"state":     string(state),
	}, nil
}

package bot

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/accessbot/internal/access"
	"github.com/tailscale/accessbot/internal/chat"
)

// Action identifies an interactive callback. Dispatch happens on this
// closed set, never on raw identifier strings scattered through
// handlers.
type Action int

const (
	ActionUnknown Action = iota
	ActionApprove
	ActionDeny
	ActionProfileChanged
	ActionDeviceQuery
	ActionFormSubmit
)

// Wire identifiers for interactive elements. ApproveActionID and
// DenyActionID are the only actions an approval prompt exposes.
const (
	ApproveActionID  = "approve_request"
	DenyActionID     = "deny_request"
	profileActionID  = "profile"
	deviceActionID   = "device"
	submitCallbackID = "request_form"
)

// ParseAction maps a wire identifier to an Action
func ParseAction(id string) Action {
	switch id {
	case ApproveActionID:
		return ActionApprove
	case DenyActionID:
		return ActionDeny
	case profileActionID:
		return ActionProfileChanged
	case deviceActionID:
		return ActionDeviceQuery
	case submitCallbackID:
		return ActionFormSubmit
	}
	return ActionUnknown
}

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return ApproveActionID
	case ActionDeny:
		return DenyActionID
	case ActionProfileChanged:
		return profileActionID
	case ActionDeviceQuery:
		return deviceActionID
	case ActionFormSubmit:
		return submitCallbackID
	}
	return "unknown"
}

// Interaction is the envelope delivered by the chat platform for every
// callback: button clicks, suggestion queries, and form submissions.
type Interaction struct {
	Type        string            `json:"type"` // block_actions, block_suggestion, view_submission
	ActionID    string            `json:"action_id,omitempty"`
	CallbackID  string            `json:"callback_id,omitempty"`
	ExecutionID string            `json:"execution_id"`
	User        string            `json:"user_id"`
	TriggerID   string            `json:"trigger_id,omitempty"`
	Message     chat.MessageRef   `json:"message,omitempty"`
	View        chat.ViewRef      `json:"view,omitempty"`
	Value       string            `json:"value,omitempty"` // suggestion query text
	Form        map[string]string `json:"form,omitempty"`  // form state by action id
	Access      *access.Access    `json:"access,omitempty"`
}

// Action resolves the interaction to its dispatch tag
func (i *Interaction) Action() Action {
	if i.Type == "view_submission" {
		return ParseAction(i.CallbackID)
	}
	return ParseAction(i.ActionID)
}

// Submission extracts the form state of a request submission
func (i *Interaction) Submission() access.Submission {
	return access.Submission{
		Profile:  i.Form[access.FieldProfile],
		Device:   i.Form[access.FieldDevice],
		Duration: i.Form[access.FieldDuration],
		Approver: i.Form[access.FieldApprover],
		Reason:   i.Form[access.FieldReason],
	}
}

// ParseInteraction decodes an interaction payload
func ParseInteraction(data []byte) (*Interaction, error) {
	var in Interaction
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interaction: %w", err)
	}
	return &in, nil
}

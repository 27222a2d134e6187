package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		id   string
		want Action
	}{
		{"approve_request", ActionApprove},
		{"deny_request", ActionDeny},
		{"profile", ActionProfileChanged},
		{"device", ActionDeviceQuery},
		{"request_form", ActionFormSubmit},
		{"something_else", ActionUnknown},
		{"", ActionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAction(tt.id))
			if tt.want != ActionUnknown {
				assert.Equal(t, tt.id, tt.want.String())
			}
		})
	}
}

func TestInteraction_Action(t *testing.T) {
	// Button clicks dispatch on the action id.
	click := Interaction{Type: "block_actions", ActionID: ApproveActionID}
	assert.Equal(t, ActionApprove, click.Action())

	// Form submissions dispatch on the callback id.
	submit := Interaction{Type: "view_submission", CallbackID: "request_form"}
	assert.Equal(t, ActionFormSubmit, submit.Action())

	// A submission's action id is irrelevant.
	mixed := Interaction{Type: "view_submission", CallbackID: "request_form", ActionID: DenyActionID}
	assert.Equal(t, ActionFormSubmit, mixed.Action())
}

func TestInteraction_Submission(t *testing.T) {
	in := Interaction{Form: map[string]string{
		"profile":  "custom:prodAccess",
		"device":   "node-1",
		"duration": "3600",
		"approver": "U_APP:alice@example.com",
		"reason":   "deploy fix",
	}}

	s := in.Submission()
	assert.Equal(t, "custom:prodAccess", s.Profile)
	assert.Equal(t, "node-1", s.Device)
	assert.Equal(t, "3600", s.Duration)
	assert.Equal(t, "U_APP:alice@example.com", s.Approver)
	assert.Equal(t, "deploy fix", s.Reason)
}

func TestParseInteraction(t *testing.T) {
	payload := `{
		"type": "block_actions",
		"action_id": "approve_request",
		"execution_id": "exec_1",
		"user_id": "U_APP",
		"message": {"channel_id": "D123", "message_ts": "1700000000.000100"},
		"access": {
			"requester": "U_REQ",
			"profile": {"description": "Access prod", "attribute": "custom:prodAccess"},
			"device": {"nodeId": "node-1"},
			"approver": {"userId": "U_APP", "email": "alice@example.com"},
			"durationSeconds": 3600,
			"reason": "deploy fix"
		}
	}`

	in, err := ParseInteraction([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, in.Action())
	assert.Equal(t, "exec_1", in.ExecutionID)
	assert.Equal(t, "D123", in.Message.Channel)
	require.NotNil(t, in.Access)
	assert.Equal(t, "custom:prodAccess", in.Access.Profile.Attribute)
	assert.Equal(t, 3600, in.Access.DurationSeconds)

	_, err = ParseInteraction([]byte("not json"))
	assert.Error(t, err)
}

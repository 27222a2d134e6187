package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale/accessbot/internal/chat"
)

func TestValidateSubmission(t *testing.T) {
	profiles := []Profile{
		{
			Description: "Access prod",
			Attribute:   "custom:prodAccess",
			MaxSeconds:  4 * hourSecs,
			ApproverEmails: []string{
				"Alice@example.com",
				"bob@example.com",
			},
		},
		{
			Description:    "Access staging",
			Attribute:      "custom:stagingAccess",
			CanSelfApprove: true,
		},
	}

	valid := Submission{
		Profile:  "custom:prodAccess",
		Device:   "node-1",
		Duration: "3600",
		Approver: "U_APP:alice@example.com",
		Reason:   "deploy fix",
	}

	tests := []struct {
		name       string
		submission Submission
		requester  string
		wantField  string
	}{
		{
			name:       "unknown profile",
			submission: Submission{Profile: "custom:gone", Device: "node-1", Duration: "3600", Approver: "U_APP:alice@example.com"},
			wantField:  FieldProfile,
		},
		{
			name:       "empty profile",
			submission: Submission{Device: "node-1", Duration: "3600", Approver: "U_APP:alice@example.com"},
			wantField:  FieldProfile,
		},
		{
			name:       "no device chosen",
			submission: Submission{Profile: "custom:prodAccess", Duration: "3600", Approver: "U_APP:alice@example.com"},
			wantField:  FieldDevice,
		},
		{
			name:       "placeholder device option",
			submission: Submission{Profile: "custom:prodAccess", Device: "!", Duration: "3600", Approver: "U_APP:alice@example.com"},
			wantField:  FieldDevice,
		},
		{
			name:       "missing approver",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Duration: "3600"},
			wantField:  FieldApprover,
		},
		{
			name:       "self-approval not allowed",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Duration: "3600", Approver: "U_REQ:alice@example.com"},
			requester:  "U_REQ",
			wantField:  FieldApprover,
		},
		{
			name:       "approver not on allow-list",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Duration: "3600", Approver: "U_APP:mallory@example.com"},
			wantField:  FieldApprover,
		},
		{
			name:       "missing duration",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Approver: "U_APP:alice@example.com"},
			wantField:  FieldDuration,
		},
		{
			name:       "non-numeric duration",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Duration: "soon", Approver: "U_APP:alice@example.com"},
			wantField:  FieldDuration,
		},
		{
			name:       "duration over profile maximum",
			submission: Submission{Profile: "custom:prodAccess", Device: "node-1", Duration: "86400", Approver: "U_APP:alice@example.com"},
			wantField:  FieldDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requester := tt.requester
			if requester == "" {
				requester = "U_REQ"
			}
			a, errs := ValidateSubmission(context.Background(), profiles, requester, tt.submission, newFakeChat())
			assert.Nil(t, a)
			assert.Contains(t, errs, tt.wantField)
		})
	}

	t.Run("valid submission", func(t *testing.T) {
		a, errs := ValidateSubmission(context.Background(), profiles, "U_REQ", valid, newFakeChat())
		require.Empty(t, errs)
		require.NotNil(t, a)
		assert.Equal(t, "U_REQ", a.Requester)
		assert.Equal(t, "custom:prodAccess", a.Profile.Attribute)
		assert.Equal(t, "node-1", a.Device.NodeID)
		assert.Equal(t, "U_APP", a.Approver.UserID)
		assert.Equal(t, "alice@example.com", a.Approver.Email)
		assert.Equal(t, 3600, a.DurationSeconds)
		assert.Equal(t, "deploy fix", a.Reason)
	})

	t.Run("self-approval allowed by profile", func(t *testing.T) {
		s := Submission{
			Profile:  "custom:stagingAccess",
			Device:   "node-1",
			Duration: "3600",
			Approver: "U_REQ:req@example.com",
		}
		a, errs := ValidateSubmission(context.Background(), profiles, "U_REQ", s, newFakeChat())
		require.Empty(t, errs)
		require.NotNil(t, a)
		assert.True(t, a.SelfApproval())
	})

	t.Run("approver email resolved via lookup", func(t *testing.T) {
		users := newFakeChat()
		users.users["U_APP"] = &chat.User{ID: "U_APP", Email: "Bob@example.com"}

		s := valid
		s.Approver = "U_APP"
		a, errs := ValidateSubmission(context.Background(), profiles, "U_REQ", s, users)
		require.Empty(t, errs)
		require.NotNil(t, a)
		assert.Equal(t, "bob@example.com", a.Approver.Email)
	})

	t.Run("approver lookup failure", func(t *testing.T) {
		s := valid
		s.Approver = "U_UNKNOWN"
		a, errs := ValidateSubmission(context.Background(), profiles, "U_REQ", s, newFakeChat())
		assert.Nil(t, a)
		assert.Contains(t, errs, FieldApprover)
	})

	t.Run("allow-list match is case-insensitive", func(t *testing.T) {
		s := valid
		s.Approver = "U_APP:ALICE@example.com"
		a, errs := ValidateSubmission(context.Background(), profiles, "U_REQ", s, newFakeChat())
		require.Empty(t, errs)
		require.NotNil(t, a)
	})
}

func TestFieldErrors_FirstWins(t *testing.T) {
	errs := FieldErrors{}
	errs.set(FieldDevice, "first")
	errs.set(FieldDevice, "second")
	assert.Equal(t, "first", errs[FieldDevice])
}

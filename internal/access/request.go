package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tailscale/accessbot/internal/chat"
)

// Field ids match the interactive form's action ids.
const (
	FieldProfile  = "profile"
	FieldDevice   = "device"
	FieldDuration = "duration"
	FieldApprover = "approver"
	FieldReason   = "reason"
)

// noDeviceValue is the placeholder option shown when device lookup
// failed; submitting it is never valid.
const noDeviceValue = "!"

// FieldErrors maps form fields to user-facing validation messages.
// Validation failures never reach the network layer.
type FieldErrors map[string]string

func (e FieldErrors) set(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Submission is the raw form state of an access request.
type Submission struct {
	Profile  string // profile attribute
	Device   string // device node id
	Duration string // seconds, decimal string
	Approver string // "<userId>" or "<userId>:<email>"
	Reason   string
}

// UserLookup resolves the approver's email when the form value does not
// carry one (user-select inputs pass only the user id through).
type UserLookup interface {
	UserInfo(ctx context.Context, userID string) (*chat.User, error)
}

// ValidateSubmission checks a submitted form against configuration and
// builds the Access record for the approval step. On any validation
// failure it returns nil and the per-field errors; the device snapshot
// carries only the node id and is enriched by the caller.
func ValidateSubmission(ctx context.Context, profiles []Profile, requester string, s Submission, users UserLookup) (*Access, FieldErrors) {
	errs := FieldErrors{}

	profile, err := FindProfile(profiles, s.Profile)
	if err != nil {
		errs.set(FieldProfile, fmt.Sprintf("Access with attribute %s could not be found.", s.Profile))
	}
	if s.Profile == "" {
		errs[FieldProfile] = "Choose which access to request."
	}

	if s.Device == "" || s.Device == noDeviceValue {
		errs.set(FieldDevice, "Choose which device to use.")
	}

	approverID, approverEmail, _ := strings.Cut(s.Approver, ":")
	if approverID == "" {
		errs.set(FieldApprover, "An approver is required to confirm access.")
	} else if profile != nil {
		if !profile.CanSelfApprove && approverID == requester {
			errs.set(FieldApprover, fmt.Sprintf("You cannot approve your own access to %s.", profile.Description))
		}

		// A plain user-select passes no email through; resolve it now
		// so the allow-list check has something to match.
		if approverEmail == "" {
			user, err := users.UserInfo(ctx, approverID)
			if err != nil {
				errs.set(FieldApprover, fmt.Sprintf("Error loading approver email: %v", err))
			} else {
				approverEmail = user.Email
			}
		}

		approverEmail = normalizeEmail(approverEmail)
		if !profile.AllowsApprover(approverEmail) {
			errs.set(FieldApprover, fmt.Sprintf("The user you selected cannot approve access to %s.", profile.Description))
		}
	}

	duration := 0
	if s.Duration != "" {
		duration, err = strconv.Atoi(s.Duration)
		if err != nil {
			duration = 0
		}
	}
	if duration <= 0 {
		errs.set(FieldDuration, "Choose how long to request access for.")
	} else if profile != nil && duration > profile.MaxDuration() {
		errs.set(FieldDuration, fmt.Sprintf("Access to %s is limited to %s.", profile.Description, DurationText(profile.MaxDuration())))
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Access{
		Requester:       requester,
		Profile:         *profile,
		Device:          DeviceRef{NodeID: s.Device},
		Approver:        Approver{UserID: approverID, Email: approverEmail},
		DurationSeconds: duration,
		Reason:          s.Reason,
	}, nil
}

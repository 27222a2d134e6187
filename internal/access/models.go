package access

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named, pre-configured access grant definition: which
// device attribute is set, who may approve, and for how long.
type Profile struct {
	// Description is the human-readable name for the access being granted.
	Description string `json:"description"`

	// Attribute is the device attribute set for the selected duration
	// upon the request being approved.
	Attribute string `json:"attribute"`

	// MaxSeconds is the maximum duration to offer when requesting access
	// to this profile. Zero means the default of one day.
	MaxSeconds int `json:"maxSeconds,omitempty"`

	// NotifyChannel is a channel id to post approve/deny updates to.
	// Empty means no channel updates.
	NotifyChannel string `json:"notifyChannel,omitempty"`

	// ApproverEmails restricts who may approve a request. Empty means
	// anybody can approve.
	ApproverEmails []string `json:"approverEmails,omitempty"`

	// CanSelfApprove allows a user to name themselves as the approver.
	CanSelfApprove bool `json:"canSelfApprove,omitempty"`

	// ConfirmSelfApproval shows the approval prompt to self-approvers
	// instead of granting immediately.
	ConfirmSelfApproval bool `json:"confirmSelfApproval,omitempty"`
}

// Validate checks the profile configuration
func (p *Profile) Validate() error {
	if p.Attribute == "" {
		return fmt.Errorf("profile %q: attribute is required", p.Description)
	}
	if p.Description == "" {
		return fmt.Errorf("profile %q: description is required", p.Attribute)
	}
	if p.MaxSeconds < 0 {
		return fmt.Errorf("profile %q: maxSeconds must not be negative", p.Description)
	}
	return nil
}

// MaxDuration returns the longest duration a request against this
// profile may ask for.
func (p *Profile) MaxDuration() int {
	if p.MaxSeconds > 0 {
		return p.MaxSeconds
	}
	return daySecs
}

// AllowsApprover reports whether the given email may approve requests
// for this profile. An empty allow-list allows anybody.
func (p *Profile) AllowsApprover(email string) bool {
	if len(p.ApproverEmails) == 0 {
		return true
	}
	email = normalizeEmail(email)
	for _, allowed := range p.ApproverEmails {
		if normalizeEmail(allowed) == email {
			return true
		}
	}
	return false
}

// FindProfile returns the profile with the given attribute, or
// ErrProfileNotFound.
func FindProfile(profiles []Profile, attribute string) (*Profile, error) {
	for i := range profiles {
		if profiles[i].Attribute == attribute {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, attribute)
}

// DeviceRef is a snapshot of the device named in a request, taken at
// submission time from the device API. It is not re-validated at
// approval time.
type DeviceRef struct {
	NodeID    string   `json:"nodeId"`
	Name      string   `json:"name,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	User      string   `json:"user,omitempty"`
	OS        string   `json:"os,omitempty"`
}

// DisplayName returns the device name, falling back to the node id.
func (d *DeviceRef) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.NodeID
}

// Approver is the user asked to decide a request.
type Approver struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Access is a single submitted access request. It is created once by
// the request step, is immutable, and is passed by value through the
// approval state machine.
type Access struct {
	Requester       string    `json:"requester"`
	Profile         Profile   `json:"profile"`
	Device          DeviceRef `json:"device"`
	Approver        Approver  `json:"approver"`
	DurationSeconds int       `json:"durationSeconds"`
	Reason          string    `json:"reason"`
}

// SelfApproval reports whether the requester named themselves as approver.
func (a *Access) SelfApproval() bool {
	return a.Requester == a.Approver.UserID
}

// Expiry returns the moment the granted access ends, measured from now.
func (a *Access) Expiry(now time.Time) time.Time {
	return now.Add(time.Duration(a.DurationSeconds) * time.Second)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

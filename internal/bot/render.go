package bot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/accessbot/internal/access"
	"github.com/tailscale/accessbot/internal/chat"
	"github.com/tailscale/accessbot/internal/tailscale"
)

const adminMachinesURL = "https://login.tailscale.com/admin/machines"

// Renderer builds the chat payloads for the approval flow. It
// implements access.Renderer.
type Renderer struct{}

// ApprovalPrompt is the message asking the approver to decide
func (Renderer) ApprovalPrompt(a access.Access) chat.Message {
	blocks := append(requestHeaderBlocks(a), chat.Block{
		"type":     "actions",
		"block_id": "approve-deny-buttons",
		"elements": []chat.Block{
			{
				"type":      "button",
				"action_id": ApproveActionID,
				"style":     "primary",
				"text":      plainText("Approve"),
			},
			{
				"type":      "button",
				"action_id": DenyActionID,
				"style":     "danger",
				"text":      plainText("Deny"),
			},
		},
	})

	return chat.Message{
		Text:   "You have been asked to approve Tailscale access",
		Blocks: blocks,
	}
}

// ApprovalDecided replaces the prompt's buttons with the decision
func (Renderer) ApprovalDecided(a access.Access, approved bool) chat.Message {
	blocks := append(requestHeaderBlocks(a), chat.Block{
		"type": "context",
		"elements": []chat.Block{
			{"type": "mrkdwn", "text": decisionEmoji(approved)},
		},
	})

	return chat.Message{
		Text:   fmt.Sprintf("Access request %s", decisionWord(approved)),
		Blocks: blocks,
	}
}

// DecisionNotice is posted to the requester and the notify channel
func (Renderer) DecisionNotice(a access.Access, approved bool, until time.Time) chat.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<@%s>'s access request for %s on <%s|%s>",
		a.Requester, a.Profile.Description,
		machineLink(a.Device.NodeID, a.Device.Addresses), a.Device.DisplayName())
	if a.Reason != "" {
		fmt.Fprintf(&sb, " for %q", a.Reason)
	}
	fmt.Fprintf(&sb, " was %s by <@%s> until %s",
		decisionEmoji(approved), a.Approver.UserID, until.UTC().Format(time.RFC3339))

	return chat.Message{
		Text: fmt.Sprintf("<@%s>'s access request was %s!", a.Requester, decisionWord(approved)),
		Blocks: []chat.Block{{
			"type": "context",
			"elements": []chat.Block{
				{"type": "mrkdwn", "text": sb.String()},
			},
		}},
	}
}

// requestHeaderBlocks describes the request at the top of the approval
// prompt: who, which device, how long, which attribute.
func requestHeaderBlocks(a access.Access) []chat.Block {
	text := fmt.Sprintf("*:wave: <@%s> is requesting Tailscale access to %s.*",
		a.Requester, a.Profile.Description)
	if a.Reason != "" {
		text += "\n\nReason:\n>" + a.Reason
	}

	var owner string
	if len(a.Device.Tags) > 0 {
		owner = ":robot_face: `" + strings.Join(a.Device.Tags, "` `") + "`"
	} else {
		owner = ":bust_in_silhouette: " + a.Device.User
	}

	return []chat.Block{{
		"type": "section",
		"text": chat.Block{"type": "mrkdwn", "text": text},
		"fields": []chat.Block{
			{"type": "mrkdwn", "text": fmt.Sprintf(":%s: <%s|%s>",
				osEmoji(a.Device.OS), machineLink(a.Device.NodeID, a.Device.Addresses), a.Device.DisplayName())},
			{"type": "mrkdwn", "text": owner},
			{"type": "mrkdwn", "text": ":stopwatch: " + access.DurationText(a.DurationSeconds)},
			{"type": "mrkdwn", "text": ":label: `" + a.Profile.Attribute + "`"},
		},
	}}
}

func decisionWord(approved bool) string {
	if approved {
		return "approved"
	}
	return "denied"
}

func decisionEmoji(approved bool) string {
	if approved {
		return ":white_check_mark: Approved"
	}
	return ":x: Denied"
}

// machineLink returns the admin-console link for a device, by address
// when known, by node-id search otherwise.
func machineLink(nodeID string, addresses []string) string {
	if len(addresses) > 0 && addresses[0] != "" {
		return adminMachinesURL + "/" + addresses[0]
	}
	return adminMachinesURL + "?q=" + url.QueryEscape(nodeID)
}

func osEmoji(os string) string {
	switch os {
	case "android", "iOS":
		return "iphone"
	case "tvOS":
		return "tv"
	default:
		return "computer"
	}
}

func plainText(text string) chat.Block {
	return chat.Block{"type": "plain_text", "text": text}
}

// DeviceOptionGroups renders autocomplete results as two option
// groups: the requester's own devices first, then everything else.
func DeviceOptionGroups(own, all []tailscale.Device) chat.Block {
	groups := make([]chat.Block, 0, 2)
	if opts := deviceOptions(own); len(opts) > 0 {
		groups = append(groups, chat.Block{"label": plainText("Your Devices"), "options": opts})
	}
	if opts := deviceOptions(all); len(opts) > 0 {
		groups = append(groups, chat.Block{"label": plainText("All Devices"), "options": opts})
	}
	return chat.Block{"option_groups": groups}
}

// DeviceErrorOptions renders a device-lookup failure as a single
// unselectable warning option.
func DeviceErrorOptions(err error) chat.Block {
	return chat.Block{
		"options": []chat.Block{{
			"value": "!",
			"text":  plainText(fmt.Sprintf(":warning: Error retrieving devices: %v", err)),
		}},
	}
}

func deviceOptions(devices []tailscale.Device) []chat.Block {
	opts := make([]chat.Block, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.NodeID
		}
		opts = append(opts, chat.Block{"value": d.NodeID, "text": plainText(name)})
	}
	return opts
}

// RequestView builds the request form modal for the current form state.
// Duration options never exceed the selected profile's maximum.
func RequestView(ctx context.Context, chatClient chat.Client, profiles []access.Profile, userID string, form map[string]string) chat.View {
	profileOpts := make([]chat.Block, 0, len(profiles))
	for _, p := range profiles {
		profileOpts = append(profileOpts, chat.Block{"value": p.Attribute, "text": plainText(p.Description)})
	}

	blocks := []chat.Block{{
		"block_id":        "profile",
		"type":            "input",
		"dispatch_action": true,
		"label":           plainText(":closed_lock_with_key: What do you want to access?"),
		"element": chat.Block{
			"action_id":   profileActionID,
			"type":        "static_select",
			"placeholder": plainText("Choose access..."),
			"options":     profileOpts,
		},
	}, {
		"block_id": "device",
		"type":     "input",
		"label":    plainText(":computer: Which device are you using?"),
		"element": chat.Block{
			"action_id":        deviceActionID,
			"type":             "external_select",
			"placeholder":      plainText("Choose device..."),
			"min_query_length": 0,
		},
	}}

	// Duration, approver and reason appear once a profile is selected.
	if attr := form[access.FieldProfile]; attr != "" {
		if profile, err := access.FindProfile(profiles, attr); err == nil {
			durationOpts := make([]chat.Block, 0)
			for _, d := range access.DurationOptions(profile) {
				durationOpts = append(durationOpts, chat.Block{
					"value": strconv.Itoa(d.Seconds),
					"text":  plainText(d.Text),
				})
			}

			blocks = append(blocks,
				chat.Block{
					"block_id": "duration",
					"type":     "input",
					"label":    plainText(":stopwatch: For how long?"),
					"element": chat.Block{
						"action_id":   access.FieldDuration,
						"type":        "static_select",
						"placeholder": plainText("Choose duration..."),
						"options":     durationOpts,
					},
				},
				approverBlock(ctx, chatClient, userID, profile),
				chat.Block{
					"block_id": "reason",
					"type":     "input",
					"label":    plainText(":open_book: What do you need the access for?"),
					"element": chat.Block{
						"action_id":   access.FieldReason,
						"type":        "plain_text_input",
						"max_length":  80,
						"placeholder": plainText("Enter reason..."),
					},
				})
		}
	}

	return chat.View{
		"type":        "modal",
		"callback_id": submitCallbackID,
		"title":       plainText("Requesting Access"),
		"submit":      plainText("Submit"),
		"close":       plainText("Cancel"),
		"blocks":      blocks,
	}
}

// approverBlock picks the approver input for a profile: a single
// self-approval radio, a free user select, or radios for a short email
// allow-list resolved through the chat platform.
func approverBlock(ctx context.Context, chatClient chat.Client, userID string, profile *access.Profile) chat.Block {
	label := plainText(":sleuth_or_spy: Who should approve?")

	if len(profile.ApproverEmails) == 0 && profile.CanSelfApprove {
		opt := chat.Block{"value": userID, "text": plainText("No approval needed")}
		return chat.Block{
			"block_id": "approver",
			"type":     "input",
			"label":    label,
			"element": chat.Block{
				"action_id":      access.FieldApprover,
				"type":           "radio_buttons",
				"initial_option": opt,
				"options":        []chat.Block{opt},
			},
		}
	}

	// Radio buttons hold at most ten options; beyond that fall back to
	// a free user select and validate the email at submission.
	if len(profile.ApproverEmails) == 0 || len(profile.ApproverEmails) > 10 {
		return chat.Block{
			"block_id": "approver",
			"type":     "input",
			"label":    label,
			"element": chat.Block{
				"action_id":   access.FieldApprover,
				"type":        "users_select",
				"placeholder": plainText("Choose an approver..."),
			},
		}
	}

	var options []chat.Block
	var failed []string
	for _, email := range profile.ApproverEmails {
		user, err := chatClient.UserByEmail(ctx, email)
		if err != nil || user == nil || user.Deleted {
			failed = append(failed, email)
			continue
		}
		if !profile.CanSelfApprove && len(profile.ApproverEmails) > 1 && user.ID == userID {
			continue
		}

		text := fmt.Sprintf("<@%s> - %s", user.ID, user.RealName)
		if user.ID == userID {
			text += " (You)"
		}
		options = append(options, chat.Block{
			"value": user.ID + ":" + user.Email,
			"text":  chat.Block{"type": "mrkdwn", "text": text},
		})
	}

	if len(options) == 0 {
		options = []chat.Block{{
			"value": "!",
			"text":  plainText(":warning: No reviewers could be found."),
		}}
	}

	block := chat.Block{
		"block_id": "approver",
		"type":     "input",
		"label":    label,
		"element": chat.Block{
			"action_id": access.FieldApprover,
			"type":      "radio_buttons",
			"options":   options,
		},
	}
	if len(failed) > 0 {
		block["hint"] = plainText("Lookups failed for: " + strings.Join(failed, ", "))
	}
	return block
}

// NotConfiguredView is shown instead of the request form when the
// device API credentials are absent. No network call is attempted.
func NotConfiguredView() chat.View {
	return chat.View{
		"type":  "modal",
		"title": plainText("Requesting Access"),
		"close": plainText("Cancel"),
		"blocks": []chat.Block{{
			"type": "section",
			"text": chat.Block{
				"type": "mrkdwn",
				"text": ":warning: This workflow requires configuring the " +
					"`TAILSCALE_CLIENT_ID` and `TAILSCALE_CLIENT_SECRET` " +
					"environment variables. Without it, API requests to " +
					"Tailscale would fail.",
			},
		}},
	}
}

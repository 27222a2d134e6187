package access

import (
	"sort"
	"strings"

	"github.com/tailscale/accessbot/internal/tailscale"
)

const (
	maxOwnDeviceOptions = 80
	maxAllDeviceOptions = 20
)

// FilterDevices returns the devices matching a free-text autocomplete
// query: name substring, node-id prefix, or address prefix. An empty
// query matches everything.
func FilterDevices(devices []tailscale.Device, query string) []tailscale.Device {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return devices
	}

	matched := make([]tailscale.Device, 0, len(devices))
	for _, d := range devices {
		if deviceMatches(d, query) {
			matched = append(matched, d)
		}
	}
	return matched
}

func deviceMatches(d tailscale.Device, query string) bool {
	if strings.Contains(strings.ToLower(d.Name), query) {
		return true
	}
	if strings.HasPrefix(d.NodeID, query) {
		return true
	}
	for _, addr := range d.Addresses {
		if strings.HasPrefix(addr, query) {
			return true
		}
	}
	return false
}

// OwnDevices returns the untagged devices owned by the given email,
// most recently seen first, capped for option lists. An empty email
// returns nothing.
func OwnDevices(devices []tailscale.Device, email string) []tailscale.Device {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	own := make([]tailscale.Device, 0, len(devices))
	for _, d := range devices {
		if strings.ToLower(d.User) == email && len(d.Tags) == 0 {
			own = append(own, d)
		}
	}

	sort.SliceStable(own, func(i, j int) bool {
		return own[i].LastSeen > own[j].LastSeen
	})

	if len(own) > maxOwnDeviceOptions {
		own = own[:maxOwnDeviceOptions]
	}
	return own
}

// TopDevices caps a device list for the "all devices" option group.
func TopDevices(devices []tailscale.Device) []tailscale.Device {
	if len(devices) > maxAllDeviceOptions {
		return devices[:maxAllDeviceOptions]
	}
	return devices
}

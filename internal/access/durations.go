package access

import "fmt"

const (
	minuteSecs = 60
	hourSecs   = 60 * minuteSecs
	daySecs    = 24 * hourSecs
)

// Duration is one selectable grant length.
type Duration struct {
	Text    string
	Seconds int
}

// PresetDurations is the fixed set of grant lengths offered to
// requesters, longest first capped at seven days.
var PresetDurations = []Duration{
	{Text: "5 minutes", Seconds: 5 * minuteSecs},
	{Text: "30 minutes", Seconds: 30 * minuteSecs},
	{Text: "1 hour", Seconds: 1 * hourSecs},
	{Text: "4 hours", Seconds: 4 * hourSecs},
	{Text: "8 hours", Seconds: 8 * hourSecs},
	{Text: "12 hours", Seconds: 12 * hourSecs},
	{Text: "24 hours", Seconds: 1 * daySecs},
	{Text: "2 days", Seconds: 2 * daySecs},
	{Text: "3 days", Seconds: 3 * daySecs},
	{Text: "4 days", Seconds: 4 * daySecs},
	{Text: "5 days", Seconds: 5 * daySecs},
	{Text: "6 days", Seconds: 6 * daySecs},
	{Text: "7 days", Seconds: 7 * daySecs},
}

// DurationOptions returns the preset durations a request against the
// profile may choose from; options never exceed the profile's maximum.
func DurationOptions(p *Profile) []Duration {
	max := p.MaxDuration()
	opts := make([]Duration, 0, len(PresetDurations))
	for _, d := range PresetDurations {
		if d.Seconds <= max {
			opts = append(opts, d)
		}
	}
	return opts
}

// DurationText returns the label for a duration in seconds, falling
// back to a raw seconds count for non-preset values.
func DurationText(seconds int) string {
	for _, d := range PresetDurations {
		if d.Seconds == seconds {
			return d.Text
		}
	}
	return fmt.Sprintf("%d seconds", seconds)
}

package domain

import "time"

// DeliveryPreferences is a recipient's channel enablement, quiet hours, and
// minimum priority threshold. The core reads these; an external surface owns
// the writes.
type DeliveryPreferences struct {
	RecipientID     string
	EmailEnabled    bool
	SMSEnabled      bool
	QuietHoursStart *string // "HH:MM", recipient-local
	QuietHoursEnd   *string
	MinPriority     Priority
	UpdatedAt       time.Time
}

// AllowsChannel reports whether the recipient accepts delivery on the channel
// for the given priority at the given time. In-app delivery is never
// suppressed; quiet hours and the priority floor only gate outbound channels,
// and urgent-or-above traffic ignores quiet hours.
func (p *DeliveryPreferences) AllowsChannel(ch Channel, priority Priority, at time.Time) bool {
	if ch == ChannelInApp {
		return true
	}
	if p == nil {
		return true
	}

	switch ch {
	case ChannelEmail:
		if !p.EmailEnabled {
			return false
		}
	case ChannelSMS:
		if !p.SMSEnabled {
			return false
		}
	}

	if p.MinPriority.IsValid() && !priority.AtLeast(p.MinPriority) {
		return false
	}
	if !priority.AtLeast(PriorityUrgent) && p.inQuietHours(at) {
		return false
	}
	return true
}

func (p *DeliveryPreferences) inQuietHours(at time.Time) bool {
	if p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}

	start, okStart := parseMinuteOfDay(*p.QuietHoursStart)
	end, okEnd := parseMinuteOfDay(*p.QuietHoursEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	minute := at.Hour()*60 + at.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// Window spans midnight, e.g. 22:00-06:00.
	return minute >= start || minute < end
}

func parseMinuteOfDay(v string) (int, bool) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

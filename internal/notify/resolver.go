package notify

import "github.com/example/careride/internal/models"

// Options carries caller force flags. A set flag makes that channel
// eligible regardless of preferences and priority rules, used for
// critical one-off sends.
type Options struct {
	ForceEmail bool
	ForceSMS   bool
	ForcePush  bool
}

// Eligibility is the resolver's decision per channel. The realtime
// channel is not part of it; the dispatcher always attempts realtime.
type Eligibility struct {
	Email bool
	SMS   bool
	Push  bool
}

// Decide is a pure function of its inputs.
//
// Urgent priority or an emergencyOnly preference forces every channel
// the user has not globally disabled, bypassing category switches.
// Otherwise a channel fires only when its global switch and the
// category switch are both on. SMS is reserved for consequential
// events: low priority suppresses it regardless of switches.
func Decide(tmpl Template, prefs models.Preferences, opts Options) Eligibility {
	var e Eligibility
	if tmpl.Priority == models.PriorityUrgent || prefs.EmergencyOnly {
		e = Eligibility{Email: prefs.EmailEnabled, SMS: prefs.SMSEnabled, Push: prefs.PushEnabled}
	} else {
		cat := categoryEnabled(tmpl.Category, prefs)
		e = Eligibility{
			Email: prefs.EmailEnabled && cat,
			SMS:   prefs.SMSEnabled && cat,
			Push:  prefs.PushEnabled && cat,
		}
	}
	if tmpl.Priority == models.PriorityLow {
		e.SMS = false
	}
	if opts.ForceEmail {
		e.Email = true
	}
	if opts.ForceSMS {
		e.SMS = true
	}
	if opts.ForcePush {
		e.Push = true
	}
	return e
}

func categoryEnabled(cat models.Category, prefs models.Preferences) bool {
	switch cat {
	case models.CategoryRideUpdate:
		return prefs.RideUpdates
	case models.CategoryPayment:
		return prefs.PaymentAlerts
	case models.CategorySystem:
		return prefs.SystemAlerts
	case models.CategoryAlert:
		// alerts have no opt-out switch
		return true
	}
	return false
}

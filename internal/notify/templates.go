package notify

import (
	"fmt"
	"strings"

	"github.com/example/careride/internal/models"
)

// Template carries the channel-specific bodies for one event id. The
// catalog is immutable after process start.
type Template struct {
	ID        string
	Category  models.Category
	Priority  models.Priority
	Subject   string
	EmailHTML string
	SMSText   string
	PushText  string
}

type NotFoundError struct{ ID string }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("notification template %q not registered", e.ID)
}

// Registry is built once at startup and injected into the dispatcher,
// keeping it testable with substitute catalogs.
type Registry struct {
	templates map[string]Template
}

func NewRegistry(templates ...Template) *Registry {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		r.templates[t.ID] = t
	}
	return r
}

func (r *Registry) Resolve(id string) (Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return Template{}, &NotFoundError{ID: id}
	}
	return t, nil
}

// Render substitutes {{key}} placeholders against the event data.
// Unresolved placeholders stay verbatim so missing-data bugs are
// visible instead of silently blanked.
func Render(body string, data map[string]string) string {
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body
}

// DefaultRegistry returns the production catalog.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Template{
			ID: "ride_booked", Category: models.CategoryRideUpdate, Priority: models.PriorityNormal,
			Subject:   "Your ride is booked",
			EmailHTML: "<p>Hi {{name}}, your ride for {{pickup_time}} from {{pickup}} to {{dropoff}} is confirmed.</p>",
			SMSText:   "CareRide: ride booked for {{pickup_time}}, pickup at {{pickup}}.",
			PushText:  "Ride booked for {{pickup_time}}",
		},
		Template{
			ID: "driver_assigned", Category: models.CategoryRideUpdate, Priority: models.PriorityNormal,
			Subject:   "Your driver is on the way",
			EmailHTML: "<p>{{driver_name}} is on the way in a {{vehicle}}. ETA {{eta}}.</p>",
			SMSText:   "CareRide: {{driver_name}} is on the way, ETA {{eta}}.",
			PushText:  "{{driver_name}} is on the way, ETA {{eta}}",
		},
		Template{
			ID: "driver_arrived", Category: models.CategoryRideUpdate, Priority: models.PriorityHigh,
			Subject:   "Your driver has arrived",
			EmailHTML: "<p>{{driver_name}} has arrived at {{pickup}}.</p>",
			SMSText:   "CareRide: your driver has arrived at {{pickup}}.",
			PushText:  "Your driver has arrived",
		},
		Template{
			ID: "ride_started", Category: models.CategoryRideUpdate, Priority: models.PriorityNormal,
			Subject:   "Your ride has started",
			EmailHTML: "<p>Your ride to {{dropoff}} is underway.</p>",
			SMSText:   "CareRide: your ride to {{dropoff}} is underway.",
			PushText:  "Ride started",
		},
		Template{
			ID: "ride_completed", Category: models.CategoryRideUpdate, Priority: models.PriorityNormal,
			Subject:   "Ride completed",
			EmailHTML: "<p>Your ride is complete. Fare: {{fare}}.</p>",
			SMSText:   "CareRide: ride complete. Fare {{fare}}.",
			PushText:  "Ride complete: fare {{fare}}",
		},
		Template{
			ID: "ride_cancelled", Category: models.CategoryRideUpdate, Priority: models.PriorityHigh,
			Subject:   "Ride cancelled",
			EmailHTML: "<p>Your ride scheduled for {{pickup_time}} was cancelled: {{reason}}.</p>",
			SMSText:   "CareRide: ride for {{pickup_time}} cancelled. {{reason}}",
			PushText:  "Ride cancelled: {{reason}}",
		},
		Template{
			ID: "ride_searching", Category: models.CategoryRideUpdate, Priority: models.PriorityLow,
			Subject:   "Still finding you a driver",
			EmailHTML: "<p>We are still searching for a driver for your {{pickup_time}} ride. We will notify you as soon as one accepts.</p>",
			SMSText:   "CareRide: still searching for a driver for your {{pickup_time}} ride.",
			PushText:  "Still searching for a driver",
		},
		Template{
			ID: "payment_received", Category: models.CategoryPayment, Priority: models.PriorityNormal,
			Subject:   "Payment received",
			EmailHTML: "<p>We received your payment of {{amount}} for ride {{ride_id}}.</p>",
			SMSText:   "CareRide: payment of {{amount}} received.",
			PushText:  "Payment of {{amount}} received",
		},
		Template{
			ID: "payment_failed", Category: models.CategoryPayment, Priority: models.PriorityHigh,
			Subject:   "Payment problem",
			EmailHTML: "<p>Your payment of {{amount}} could not be processed: {{reason}}. Please update your payment method.</p>",
			SMSText:   "CareRide: payment of {{amount}} failed. Please update your payment method.",
			PushText:  "Payment failed: action needed",
		},
		Template{
			ID: "document_expiring", Category: models.CategorySystem, Priority: models.PriorityHigh,
			Subject:   "Your {{document}} expires soon",
			EmailHTML: "<p>Your {{document}} expires in {{days}} days. Upload a renewed copy to keep driving.</p>",
			SMSText:   "CareRide: your {{document}} expires in {{days}} days.",
			PushText:  "{{document}} expires in {{days}} days",
		},
		Template{
			ID: "account_unverified", Category: models.CategorySystem, Priority: models.PriorityNormal,
			Subject:   "Verify your email address",
			EmailHTML: "<p>Your driver account is waiting on email verification. Use the link we sent to finish signing up.</p>",
			SMSText:   "CareRide: please verify your email to activate your driver account.",
			PushText:  "Verify your email to start driving",
		},
		Template{
			ID: "daily_summary", Category: models.CategorySystem, Priority: models.PriorityLow,
			Subject:   "Your day with CareRide",
			EmailHTML: "<p>Today you completed {{rides}} rides and earned {{earnings}}.</p>",
			SMSText:   "CareRide: {{rides}} rides, {{earnings}} earned today.",
			PushText:  "Today: {{rides}} rides, {{earnings}}",
		},
		Template{
			ID: "inactivity_driver", Category: models.CategorySystem, Priority: models.PriorityLow,
			Subject:   "We miss you on the road",
			EmailHTML: "<p>It has been a while since your last trip. Riders in your area are waiting.</p>",
			SMSText:   "CareRide: riders near you need trips, come back online.",
			PushText:  "Riders near you need trips",
		},
		Template{
			ID: "inactivity_rider", Category: models.CategorySystem, Priority: models.PriorityLow,
			Subject:   "Need a ride to your next appointment?",
			EmailHTML: "<p>Book your next medical transport in a few taps.</p>",
			SMSText:   "CareRide: book your next appointment ride in a few taps.",
			PushText:  "Book your next appointment ride",
		},
		Template{
			ID: "ride_alert", Category: models.CategoryAlert, Priority: models.PriorityUrgent,
			Subject:   "Ride alert: {{alert_type}}",
			EmailHTML: "<p>Alert for ride {{ride_id}}: {{message}}</p>",
			SMSText:   "CareRide ALERT ({{alert_type}}): {{message}}",
			PushText:  "Ride alert: {{message}}",
		},
		Template{
			ID: "ride_tracking", Category: models.CategoryRideUpdate, Priority: models.PriorityNormal,
			Subject:   "Ride update",
			EmailHTML: "<p>{{message}}</p>",
			SMSText:   "CareRide: {{message}}",
			PushText:  "{{message}}",
		},
	)
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/observability"
)

// DefaultSendTimeout bounds each channel sender call so a hung
// provider cannot stall the dispatch.
const DefaultSendTimeout = 10 * time.Second

// UserSource reads user contact info, role and preference snapshot.
type UserSource interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Dispatcher fans one logical notification out across email, SMS, push
// and the realtime channel. Channels fail independently; nothing is
// retried within a single Send.
type Dispatcher struct {
	Registry *Registry
	Users    UserSource
	Email    EmailSender    // nil when not configured
	SMS      SMSSender      // nil when not configured
	Push     PushSender     // nil when not configured
	Realtime RealtimeSender // nil when the hub is absent (tests)
	Log      *slog.Logger
	Timeout  time.Duration
}

func NewDispatcher(reg *Registry, users UserSource, log *slog.Logger) *Dispatcher {
	return &Dispatcher{Registry: reg, Users: users, Log: log, Timeout: DefaultSendTimeout}
}

// Send resolves the template and user, decides channel eligibility
// from a preference snapshot, and attempts every eligible channel.
// The realtime channel is always attempted; it is low-cost and
// non-intrusive.
func (d *Dispatcher) Send(ctx context.Context, userID, templateID string, data map[string]string, opts Options) (models.DispatchResult, error) {
	var res models.DispatchResult
	tmpl, err := d.Registry.Resolve(templateID)
	if err != nil {
		return res, err
	}
	user, err := d.Users.GetUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("dispatch %s: %w", templateID, err)
	}

	elig := Decide(tmpl, user.Prefs, opts)
	res.Email = models.Skipped()
	res.SMS = models.Skipped()
	res.Push = models.Skipped()

	if elig.Email {
		res.Email = d.attempt(ctx, "email", func(cctx context.Context) (models.ChannelResult, error) {
			if d.Email == nil {
				return models.NotConfigured(), nil
			}
			id, err := d.Email.SendMail(cctx, user.Email, Render(tmpl.Subject, data), Render(tmpl.EmailHTML, data))
			if err != nil {
				return models.ChannelResult{}, err
			}
			return models.Sent(id), nil
		})
	}
	if elig.SMS {
		res.SMS = d.attempt(ctx, "sms", func(cctx context.Context) (models.ChannelResult, error) {
			if d.SMS == nil {
				return models.NotConfigured(), nil
			}
			sid, err := d.SMS.SendSMS(cctx, user.Phone, Render(tmpl.SMSText, data))
			if err != nil {
				return models.ChannelResult{}, err
			}
			return models.Sent(sid), nil
		})
	}
	if elig.Push {
		res.Push = d.attempt(ctx, "push", func(cctx context.Context) (models.ChannelResult, error) {
			if d.Push == nil {
				return models.NotConfigured(), nil
			}
			if len(user.PushTokens) == 0 {
				return models.Failed("no push subscriptions"), nil
			}
			n, err := d.Push.SendPush(cctx, user.PushTokens, Render(tmpl.Subject, data), Render(tmpl.PushText, data))
			if err != nil {
				return models.ChannelResult{}, err
			}
			return models.SentCount(n), nil
		})
	}

	res.Realtime = d.attempt(ctx, "realtime", func(context.Context) (models.ChannelResult, error) {
		if d.Realtime == nil {
			return models.NotConfigured(), nil
		}
		event := models.NotificationEvent{
			TemplateID: templateID,
			UserID:     userID,
			Category:   tmpl.Category,
			Priority:   tmpl.Priority,
			Data:       data,
		}
		if err := d.Realtime.SendToUser(userID, event); err != nil {
			return models.ChannelResult{}, err
		}
		return models.SentCount(1), nil
	})

	d.Log.Info("notification_dispatched",
		"template_id", templateID,
		"user_id", userID,
		"email", res.Email.Status,
		"sms", res.SMS.Status,
		"push", res.Push.Status,
		"realtime", res.Realtime.Status,
	)
	return res, nil
}

// attempt runs one channel send with a bounded timeout. A failure on
// one channel must never abort sibling attempts, so panics are
// contained here as well.
func (d *Dispatcher) attempt(ctx context.Context, channel string, fn func(context.Context) (models.ChannelResult, error)) (out models.ChannelResult) {
	defer func() {
		if rec := recover(); rec != nil {
			out = models.Failed(fmt.Sprintf("panic: %v", rec))
			observability.DispatchAttempts.WithLabelValues(channel, string(models.ChannelFailed)).Inc()
			d.Log.Error("channel sender panicked", "channel", channel, "error", rec)
		}
	}()
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := fn(cctx)
	if err != nil {
		res = models.Failed(err.Error())
		d.Log.Warn("channel send failed", "channel", channel, "error", err)
	}
	observability.DispatchAttempts.WithLabelValues(channel, string(res.Status)).Inc()
	return res
}

// SendRideTracking pushes a ride progress update, optionally attaching
// the current location to the realtime payload.
func (d *Dispatcher) SendRideTracking(ctx context.Context, userID, rideID, event, message string, loc *models.Coord) (models.DispatchResult, error) {
	data := map[string]string{
		"ride_id": rideID,
		"event":   event,
		"message": message,
	}
	if loc != nil {
		data["lat"] = fmt.Sprintf("%.6f", loc.Lat)
		data["lng"] = fmt.Sprintf("%.6f", loc.Lng)
	}
	return d.Send(ctx, userID, "ride_tracking", data, Options{})
}

// SendRideAlert dispatches a high-severity ride alert. Critical
// severity forces SMS and push regardless of preferences.
func (d *Dispatcher) SendRideAlert(ctx context.Context, userID, rideID, alertType, message, severity string) (models.DispatchResult, error) {
	data := map[string]string{
		"ride_id":    rideID,
		"alert_type": alertType,
		"message":    message,
		"severity":   severity,
	}
	opts := Options{}
	if severity == "critical" {
		opts.ForceSMS = true
		opts.ForcePush = true
	}
	return d.Send(ctx, userID, "ride_alert", data, opts)
}

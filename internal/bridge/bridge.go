// Package bridge connects the provider webhook stream to physical
// actions: dial-plan triggers dispatch relay callbacks or SMS, and
// completion events are correlated back to the pending action they
// confirm.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gomoncli/zadarma-bridge/internal/correlator"
	"github.com/gomoncli/zadarma-bridge/internal/dialplan"
	"github.com/gomoncli/zadarma-bridge/internal/notify"
	"github.com/gomoncli/zadarma-bridge/internal/pbx"
	"github.com/gomoncli/zadarma-bridge/internal/phone"
	"github.com/gomoncli/zadarma-bridge/internal/publisher"
)

// CallbackDialer dispatches a relay callback at the target number.
type CallbackDialer interface {
	RequestCallback(ctx context.Context, to string) error
}

// SMSSender delivers the concierge SMS to a caller.
type SMSSender interface {
	Send(ctx context.Context, recipient, text string) error
}

// Options wires a Bridge. Correlator, Dialplan and Dialer are required;
// the rest default to no-ops.
type Options struct {
	Correlator  *correlator.Correlator
	Dialplan    dialplan.Table
	Dialer      CallbackDialer
	SMS         SMSSender
	SMSText     string
	Notifier    notify.Notifier
	Publisher   publisher.Publisher
	TopicPrefix string
	Logger      logrus.FieldLogger
}

// Bridge handles parsed webhook events.
type Bridge struct {
	corr        *correlator.Correlator
	plan        dialplan.Table
	dialer      CallbackDialer
	sms         SMSSender
	smsText     string
	notifier    notify.Notifier
	pub         publisher.Publisher
	topicPrefix string
	log         logrus.FieldLogger
}

// New creates a Bridge from the given options.
func New(opts Options) *Bridge {
	b := &Bridge{
		corr:        opts.Correlator,
		plan:        opts.Dialplan,
		dialer:      opts.Dialer,
		sms:         opts.SMS,
		smsText:     opts.SMSText,
		notifier:    opts.Notifier,
		pub:         opts.Publisher,
		topicPrefix: opts.TopicPrefix,
		log:         opts.Logger,
	}
	if b.notifier == nil {
		b.notifier = notify.Nop{}
	}
	if b.pub == nil {
		b.pub = publisher.Nop{}
	}
	if b.log == nil {
		b.log = logrus.StandardLogger()
	}
	if b.topicPrefix == "" {
		b.topicPrefix = "zadarma"
	}
	return b
}

// HandleEvent processes one webhook notification. It never returns an
// error: correlation and reporting are best-effort layers on top of the
// webhook response, which must stay cheap and successful.
func (b *Bridge) HandleEvent(ctx context.Context, evt pbx.Event) {
	log := b.log.WithField("event", evt.Type())

	switch evt.Type() {
	case pbx.EventNotifyInternal:
		b.handleTrigger(ctx, evt)
	case pbx.EventNotifyStart, pbx.EventNotifyOutStart:
		log.WithFields(logrus.Fields{
			"caller":      evt.Get("caller_id"),
			"destination": evt.First("destination", "called_did", "internal"),
		}).Info("call started")
		b.publishLifecycle(ctx, evt)
	case pbx.EventNotifyEnd, pbx.EventNotifyOutEnd:
		b.handleCompletion(ctx, evt)
	default:
		log.Debug("event ignored")
	}
}

// handleTrigger runs the action behind a dialled dial-plan code.
func (b *Bridge) handleTrigger(ctx context.Context, evt pbx.Event) {
	code := evt.Get("internal")
	caller := phone.Normalize(evt.Get("caller_id"))
	log := b.log.WithFields(logrus.Fields{"internal": code, "caller": caller})

	entry, ok := b.plan.Lookup(code)
	if !ok {
		log.Info("no dial-plan entry, ignoring")
		return
	}
	log = log.WithField("action", entry.Action)

	switch {
	case entry.Action.Relay():
		b.dispatchRelay(ctx, log, entry, caller)
	case entry.Action == dialplan.ActionSendSMS:
		b.dispatchSMS(ctx, log, caller)
	}
}

// dispatchRelay registers a pending record, then asks the provider to
// place the relay callback. Registration failure downgrades the action
// to untracked; it never blocks the callback itself.
func (b *Bridge) dispatchRelay(ctx context.Context, log logrus.FieldLogger, entry dialplan.Entry, caller string) {
	target := phone.Normalize(entry.Target)
	kind := entry.Action.Kind()

	rec, err := b.corr.Register(ctx, target, caller, kind)
	tracked := err == nil
	if err != nil {
		log.WithError(err).Warn("pending store degraded, dispatching untracked")
	} else {
		log = log.WithField("call_id", rec.ID)
	}

	if err := b.dialer.RequestCallback(ctx, entry.Target); err != nil {
		log.WithError(err).Error("callback dispatch failed")
		if tracked {
			// No confirmation will ever arrive for a rejected dispatch.
			if rmErr := b.corr.Remove(ctx, rec.ID); rmErr != nil {
				log.WithError(rmErr).Warn("removing rejected pending record")
			}
		}
		b.notify(ctx, fmt.Sprintf("❌ %s: callback to %s failed: %v", entry.Name, entry.Target, err))
		b.publishAction(ctx, actionPayload{
			Event:      "dispatch_failed",
			ActionKind: kind,
			Target:     target,
			Origin:     caller,
		})
		return
	}

	log.Info("callback accepted, awaiting confirmation")
	payload := actionPayload{
		Event:      "requested",
		ActionKind: kind,
		Target:     target,
		Origin:     caller,
	}
	if tracked {
		payload.CallID = rec.ID
	}
	b.publishAction(ctx, payload)
}

// dispatchSMS sends the concierge SMS; on gateway failure the operator
// channel gets the caller's number so the invite can be sent by hand.
func (b *Bridge) dispatchSMS(ctx context.Context, log logrus.FieldLogger, caller string) {
	if b.sms == nil {
		log.Warn("sms requested but no gateway configured")
		return
	}

	recipient := phone.ForSMS(caller)
	if err := b.sms.Send(ctx, recipient, b.smsText); err != nil {
		log.WithError(err).Error("sms delivery failed")
		b.notify(ctx, fmt.Sprintf("🚨 SMS backup for %s: %s", caller, b.smsText))
		return
	}
	log.Info("sms sent")
}

// handleCompletion correlates a finished call with the pending action it
// confirms, if any.
func (b *Bridge) handleCompletion(ctx context.Context, evt pbx.Event) {
	target := phone.Normalize(evt.First("destination", "called_did", "internal"))
	log := b.log.WithFields(logrus.Fields{"event": evt.Type(), "target": target})
	if target == "" {
		log.Debug("completion event without target endpoint")
		return
	}

	rec, err := b.corr.FindPendingFor(ctx, target)
	if err != nil {
		log.WithError(err).Warn("pending lookup degraded, confirmation not attributed")
		return
	}
	if rec == nil {
		// Ordinary calls end here too; only dispatched actions have a
		// pending record waiting.
		log.Info("no outstanding action")
		return
	}
	log = log.WithFields(logrus.Fields{"call_id": rec.ID, "kind": rec.ActionKind})

	duration := evt.GetInt("duration")
	outcome := correlator.StatusFailed
	if callSucceeded(evt) {
		outcome = correlator.StatusConfirmed
	}

	ok, err := b.corr.Resolve(ctx, rec.ID, outcome)
	if err != nil {
		log.WithError(err).Warn("resolve degraded, confirmation not recorded")
		return
	}
	if !ok {
		log.Info("record already resolved, duplicate confirmation ignored")
		return
	}

	log.WithFields(logrus.Fields{"outcome": outcome, "duration": duration}).Info("action resolved")
	b.publishAction(ctx, actionPayload{
		Event:      string(outcome),
		ActionKind: rec.ActionKind,
		Target:     rec.TargetEndpoint,
		Origin:     rec.OriginIdentity,
		CallID:     rec.ID,
		Duration:   duration,
	})

	if outcome == correlator.StatusConfirmed {
		b.notify(ctx, fmt.Sprintf("✅ %s: confirmed for %s (%ds)", rec.ActionKind, rec.OriginIdentity, duration))
	} else {
		b.notify(ctx, fmt.Sprintf("❌ %s: failed for %s (disposition %s)", rec.ActionKind, rec.OriginIdentity, evt.Get("disposition")))
	}
}

// callSucceeded is the provider-facing success rule: any talk time, or
// an explicit answered disposition.
func callSucceeded(evt pbx.Event) bool {
	if evt.GetInt("duration") > 0 {
		return true
	}
	return strings.EqualFold(evt.Get("disposition"), "answered")
}

// actionPayload is the JSON structure published for action outcomes.
type actionPayload struct {
	Event      string `json:"event"`
	ActionKind string `json:"action_kind"`
	Target     string `json:"target_endpoint"`
	Origin     string `json:"origin_identity"`
	CallID     string `json:"call_id,omitempty"`
	Duration   int    `json:"duration_seconds,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (b *Bridge) publishAction(ctx context.Context, payload actionPayload) {
	payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	topic := fmt.Sprintf("%s/action/%s/%s", b.topicPrefix, payload.ActionKind, payload.Event)

	data, err := json.Marshal(payload)
	if err != nil {
		b.log.WithError(err).Error("marshaling action payload")
		return
	}
	if err := b.pub.Publish(ctx, topic, data); err != nil {
		b.log.WithField("topic", topic).WithError(err).Error("publish failed")
	}
}

// lifecyclePayload is the JSON structure published for raw call events.
type lifecyclePayload struct {
	Event       string `json:"event"`
	Caller      string `json:"caller_id"`
	Destination string `json:"destination,omitempty"`
	PBXCallID   string `json:"pbx_call_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func (b *Bridge) publishLifecycle(ctx context.Context, evt pbx.Event) {
	payload := lifecyclePayload{
		Event:       strings.ToLower(evt.Type()),
		Caller:      phone.Normalize(evt.Get("caller_id")),
		Destination: phone.Normalize(evt.First("destination", "called_did", "internal")),
		PBXCallID:   evt.Get("pbx_call_id"),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	topic := fmt.Sprintf("%s/call/%s", b.topicPrefix, payload.Event)

	data, err := json.Marshal(payload)
	if err != nil {
		b.log.WithError(err).Error("marshaling lifecycle payload")
		return
	}
	if err := b.pub.Publish(ctx, topic, data); err != nil {
		b.log.WithField("topic", topic).WithError(err).Error("publish failed")
	}
}

func (b *Bridge) notify(ctx context.Context, text string) {
	if err := b.notifier.Notify(ctx, text); err != nil {
		b.log.WithError(err).Error("operator notification failed")
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/modoterra/tailcast/internal/buildinfo"
	"github.com/modoterra/tailcast/pkg/hub"
	"github.com/modoterra/tailcast/pkg/transport/uds"
)

const logsKey = "logs"

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodLogsByDate, d.handleLogsByDate)
	d.server.Handle(uds.MethodLogsSubscribe, d.handleLogsSubscribe)
	d.server.Handle(uds.MethodLogsUnsubscribe, d.handleLogsUnsubscribe)
}

func (d *Daemon) handlePing(_ context.Context, _ *uds.Session, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ *uds.Session, _ uds.Message) (any, error) {
	return d.Status(), nil
}

func (d *Daemon) handleLogsByDate(_ context.Context, _ *uds.Session, msg uds.Message) (any, error) {
	var req uds.LogsByDateRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.logsByDate(req.Date)
}

// handleLogsSubscribe replays the window as logs.line events, then hands
// the subscription to a pump goroutine for live lines.
func (d *Daemon) handleLogsSubscribe(_ context.Context, sess *uds.Session, _ uds.Message) (any, error) {
	sub, snapshot := d.hub.Subscribe(fmt.Sprintf("uds-%d", sess.ID()))
	if !sess.Attach(logsKey, func() { d.hub.Unsubscribe(sub.ID()) }) {
		d.hub.Unsubscribe(sub.ID())
		return nil, errors.New("already subscribed")
	}

	for _, line := range snapshot {
		if err := sess.SendEvent(uds.EventLogsLine, line); err != nil {
			sess.Detach(logsKey)
			return nil, err
		}
	}
	go d.pump(sess, sub)

	d.logger.Info("socket subscriber attached", "subscriber", sub.ID(), "replay", len(snapshot))
	return uds.LogsSubscribeResponse{SubscriberID: sub.ID(), Replayed: len(snapshot)}, nil
}

func (d *Daemon) handleLogsUnsubscribe(_ context.Context, sess *uds.Session, _ uds.Message) (any, error) {
	if !sess.Detach(logsKey) {
		return nil, errors.New("not subscribed")
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) pump(sess *uds.Session, sub *hub.Subscriber) {
	for {
		select {
		case line, ok := <-sub.C():
			if !ok {
				d.subscriberClosed(sess, sub)
				return
			}
			if err := sess.SendEvent(uds.EventLogsLine, line); err != nil {
				return
			}
		case degraded := <-sub.Degraded():
			evt := uds.LogsStatusEvent{Degraded: degraded}
			if degraded {
				evt.Reason = d.hub.Status().Reason
			}
			if err := sess.SendEvent(uds.EventLogsStatus, evt); err != nil {
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// subscriberClosed tells the client why the hub dropped it. A client-side
// unsubscribe needs no notice.
func (d *Daemon) subscriberClosed(sess *uds.Session, sub *hub.Subscriber) {
	err := sub.Err()
	if err == nil || errors.Is(err, hub.ErrUnsubscribed) {
		return
	}
	d.logger.Info("socket subscriber dropped", "subscriber", sub.ID(), "reason", err)
	_ = sess.SendEvent(uds.EventLogsClosed, uds.LogsClosedEvent{Reason: err.Error()})
	sess.Detach(logsKey)
}

package workers

import (
	"context"
	"log/slog"

	"presence-relay/contract"
	"presence-relay/domain"
)

var _ contract.Worker = (*Dispatcher)(nil)

// Dispatcher hands engine instructions over to the transport.
//
// Delivery is fire-and-forget: a recipient that cannot take the frame is
// logged and counted, never retried, and never slows the engine down.
type Dispatcher struct {
	log       *slog.Logger
	transport contract.Transport
	gauges    contract.Gauges
	outbound  <-chan domain.Outbound
}

func NewDispatcher(log *slog.Logger, transport contract.Transport, gauges contract.Gauges,
	outbound <-chan domain.Outbound) *Dispatcher {
	return &Dispatcher{log: log, transport: transport, gauges: gauges, outbound: outbound}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("Context done, stopping dispatcher")
			return nil
		case o, ok := <-d.outbound:
			if !ok {
				d.log.Debug("Channel is closed")
				return nil
			}
			d.Dispatch(o)
		}
	}
}

// Dispatch delivers one instruction to each of its recipients.
func (d *Dispatcher) Dispatch(o domain.Outbound) {
	for _, id := range o.Recipients {
		var err error
		switch o.Action {
		case domain.ActionClose:
			err = d.transport.Close(id)
		default:
			err = d.transport.Send(id, o.Event, o.Payload)
		}
		if err != nil {
			d.gauges.IncrDropped()
			d.log.Warn("Delivery failed",
				"connection_id", id,
				"event", o.Event,
				"target", o.Target.String(),
				"room_id", o.RoomID,
				"error", err)
		}
	}
}

// Package orderfsm implements the order lifecycle as an explicit
// transition table, replacing implicit status-string mutation scattered
// across order-update handlers (an inline o.Status = "FILLED" on a
// trade-update event) with a single pure Apply function every status
// change must pass through.
package orderfsm

import (
	"fmt"
	"math/big"
	"time"

	"trading-core/internal/model"
)

// EventKind enumerates the events that drive order transitions.
type EventKind string

const (
	EventSubmit      EventKind = "SUBMIT"
	EventAck         EventKind = "ACK"
	EventPartialFill EventKind = "PARTIAL_FILL"
	EventFill        EventKind = "FILL"
	EventCancel      EventKind = "CANCEL"
	EventReject      EventKind = "REJECT"
	EventTimeout     EventKind = "TIMEOUT"
)

// Event carries the event-specific payload.
type Event struct {
	Kind              EventKind
	ExchangeOrderID   string  // ACK
	FilledQtyBase     *big.Int // PARTIAL_FILL, FILL
	AvgPriceQuote     *big.Int // PARTIAL_FILL, FILL
	Reason            string  // CANCEL, TIMEOUT
	Err               string  // REJECT
}

// transitions is the allowed-to table; terminal states map to nil.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderCreated:   {model.OrderSubmitted},
	model.OrderSubmitted: {model.OrderAcked, model.OrderRejected, model.OrderCanceled},
	model.OrderAcked:     {model.OrderPartial, model.OrderFilled, model.OrderCanceled, model.OrderRejected},
	model.OrderPartial:   {model.OrderPartial, model.OrderFilled, model.OrderCanceled},
	model.OrderFilled:    nil,
	model.OrderCanceled:  nil,
	model.OrderRejected:  nil,
}

// IsTerminal reports whether a status accepts no further events.
func IsTerminal(s model.OrderStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func allowed(from, to model.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply evaluates one event against the current order record and returns
// the resulting record, or an error if the event is not a valid
// transition from the order's current status (a terminal state rejects
// every event).
func Apply(o model.ManagedOrder, ev Event, now time.Time) (model.ManagedOrder, error) {
	if IsTerminal(o.Status) {
		return o, fmt.Errorf("orderfsm: order %s is terminal (%s), rejecting event %s", o.ID, o.Status, ev.Kind)
	}

	next := o
	next.UpdatedAt = now

	target, err := targetStatus(o.Status, ev)
	if err != nil {
		return o, err
	}
	if !allowed(o.Status, target) {
		return o, fmt.Errorf("orderfsm: invalid transition %s -> %s via %s", o.Status, target, ev.Kind)
	}
	next.Status = target

	switch ev.Kind {
	case EventAck:
		next.ExchangeOrderID = ev.ExchangeOrderID
		t := now
		next.AckedAt = &t
	case EventSubmit:
		t := now
		next.SubmittedAt = &t
	case EventPartialFill, EventFill:
		// ev.FilledQtyBase is the incremental quantity filled by this
		// event, not the order's cumulative total.
		if ev.FilledQtyBase != nil {
			base := next.FilledQuantityBase
			if base == nil {
				base = big.NewInt(0)
			}
			next.FilledQuantityBase = new(big.Int).Add(base, ev.FilledQtyBase)
		}
		if ev.AvgPriceQuote != nil {
			next.AvgFillPriceQuote = ev.AvgPriceQuote
		}
	case EventCancel:
		next.CancelReason = ev.Reason
	case EventReject:
		next.RejectError = ev.Err
	case EventTimeout:
		next.CancelReason = "timeout: " + ev.Reason
	}

	if next.FilledQuantityBase != nil && next.QuantityBase != nil {
		if next.FilledQuantityBase.Cmp(next.QuantityBase) > 0 {
			return o, fmt.Errorf("orderfsm: filledQuantityBase %s exceeds quantityBase %s", next.FilledQuantityBase, next.QuantityBase)
		}
		isFull := next.FilledQuantityBase.Cmp(next.QuantityBase) == 0
		if (next.Status == model.OrderFilled) != isFull && ev.Kind == EventFill {
			return o, fmt.Errorf("orderfsm: FILL event with filledQuantityBase=%s but quantityBase=%s", next.FilledQuantityBase, next.QuantityBase)
		}
	}

	return next, nil
}

func targetStatus(from model.OrderStatus, ev Event) (model.OrderStatus, error) {
	switch ev.Kind {
	case EventSubmit:
		return model.OrderSubmitted, nil
	case EventAck:
		return model.OrderAcked, nil
	case EventPartialFill:
		return model.OrderPartial, nil
	case EventFill:
		return model.OrderFilled, nil
	case EventCancel:
		return model.OrderCanceled, nil
	case EventReject:
		return model.OrderRejected, nil
	case EventTimeout:
		return model.OrderCanceled, nil
	default:
		return "", fmt.Errorf("orderfsm: unknown event kind %q", ev.Kind)
	}
}

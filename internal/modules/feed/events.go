package feed

import (
	"time"

	"go.uber.org/zap"

	"servio/internal/domain"
)

const (
	EventAppointmentCreated = "appointment_created"
	EventStatusChanged      = "appointment_status_changed"
	EventOccurrenceChanged  = "occurrence_changed"
	EventSlotToggled        = "slot_toggled"
)

// Event is the wire envelope pushed over the feed socket.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Notifier turns schedule changes into feed events. Delivery is best
// effort; a failed push never fails the operation that triggered it.
type Notifier struct {
	hub *Hub
	log *zap.Logger
}

func NewNotifier(hub *Hub, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{hub: hub, log: log}
}

func (n *Notifier) AppointmentCreated(a *domain.Appointment) {
	n.pushToParties(a.ProviderID, a.ClientID, Event{
		Type:    EventAppointmentCreated,
		At:      time.Now().UTC(),
		Payload: a,
	})
}

func (n *Notifier) AppointmentStatusChanged(a *domain.Appointment) {
	n.pushToParties(a.ProviderID, a.ClientID, Event{
		Type:    EventStatusChanged,
		At:      time.Now().UTC(),
		Payload: a,
	})
}

func (n *Notifier) OccurrenceChanged(ruleID int64, providerID, clientID int64, e *domain.RecurrenceException) {
	n.pushToParties(providerID, clientID, Event{
		Type: EventOccurrenceChanged,
		At:   time.Now().UTC(),
		Payload: map[string]any{
			"rule_id":   ruleID,
			"exception": e,
		},
	})
}

func (n *Notifier) SlotToggled(providerID, listingID int64, slot domain.Slot) {
	event := Event{
		Type: EventSlotToggled,
		At:   time.Now().UTC(),
		Payload: map[string]any{
			"listing_id": listingID,
			"slot":       slot,
		},
	}
	if !n.hub.SendToUser(providerID, event) && n.hub.IsOnline(providerID) {
		n.log.Warn("slot event dropped", zap.Int64("provider_id", providerID))
	}
}

func (n *Notifier) pushToParties(providerID, clientID int64, event Event) {
	n.hub.SendToUser(providerID, event)
	if clientID != providerID {
		n.hub.SendToUser(clientID, event)
	}
}

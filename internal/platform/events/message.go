package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/webshop/api/internal/services"
)

// OrderMessage is the JSON payload published for every order event.
type OrderMessage struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        int64          `json:"orderId"`
	UserID         int64          `json:"userId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	ActorID        int64          `json:"actorId"`
	ActorRole      string         `json:"actorRole"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func newOrderMessage(event services.OrderEvent) OrderMessage {
	return OrderMessage{
		ID:             event.ID,
		Type:           event.Type,
		OrderID:        event.OrderID,
		UserID:         event.UserID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		ActorRole:      event.ActorRole,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
}

// attributes returns the routing metadata shared by both transports.
func attributes(event services.OrderEvent) map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "status", event.CurrentStatus)
	if event.OrderID > 0 {
		attrs["orderId"] = strconv.FormatInt(event.OrderID, 10)
	}
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Vertex/internal/domain"
)

// inboundFrame — кадр от клиента. Единственный поддерживаемый тип — ping.
type inboundFrame struct {
	Type string `json:"type"`
}

// outboundFrame — кадр клиенту.
type outboundFrame struct {
	Type      domain.EventType `json:"type"`
	FlowID    string           `json:"flow_id,omitempty"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// eventFrame конвертирует событие шины в кадр.
func eventFrame(ev domain.Event) outboundFrame {
	frame := outboundFrame{
		Type:      ev.Type,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp,
	}
	if ev.FlowID != uuid.Nil {
		frame.FlowID = ev.FlowID.String()
	}
	return frame
}

// connectionFrame — приветственный кадр при подключении.
// Для каналов flow включает снимок текущего статуса.
func connectionFrame(channel string, flow *domain.Flow) outboundFrame {
	payload := map[string]any{"channel": channel}
	if flow != nil {
		payload["flow_id"] = flow.ID.String()
		payload["status"] = string(flow.Status)
		if flow.Error != "" {
			payload["error"] = flow.Error
		}
	}
	return outboundFrame{
		Type:      domain.EventTypeConnection,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// pongFrame — ответ на клиентский ping.
func pongFrame() outboundFrame {
	return outboundFrame{
		Type:      domain.EventTypePong,
		Timestamp: time.Now(),
	}
}

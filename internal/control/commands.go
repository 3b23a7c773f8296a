package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/mqtt"
)

// commandTimeout bounds one MQTT-driven set.
const commandTimeout = 10 * time.Second

// StateMessage is the retained payload on an attribute state topic.
type StateMessage struct {
	Value     int64     `json:"value"`
	Label     string    `json:"label"`
	Display   string    `json:"display,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Command is the payload of an attribute command topic. Value is either
// a number or a label such as "limited" or "on".
type Command struct {
	Value json.RawMessage `json:"value"`
	Actor string          `json:"actor,omitempty"`
}

// ParseValue decodes a JSON number or string into a value of kind.
func ParseValue(kind display.Kind, raw json.RawMessage) (display.Value, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return display.Value{}, fmt.Errorf("%w: value must be a number, string or boolean", display.ErrInvalidAttributeValue)
			}
			return display.BoolValue(kind, b), nil
		}
		text = n.String()
	}
	return display.ParseValue(kind, text)
}

// HandleCommand applies a command received on
// nvdisplay/command/<display>/<attribute>. It matches mqtt.MessageHandler.
func (s *Service) HandleCommand(topic string, payload []byte) error {
	ref, attr, ok := mqtt.Topics{}.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("not a command topic: %s", topic)
	}
	kind, err := display.ParseKind(attr)
	if err != nil {
		return err
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Value == nil {
		cmd = Command{Value: bareValue(payload)}
	}
	value, err := ParseValue(kind, cmd.Value)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	return s.SetAttributeAs(ctx, Origin{Source: audit.SourceMQTT, Actor: cmd.Actor}, id, kind, value)
}

// bareValue accepts payloads such as 512, "limited" or limited.
func bareValue(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return payload
	}
	b, _ := json.Marshal(strings.TrimSpace(string(payload))) //nolint:errcheck // string marshalling cannot fail
	return b
}

// publishState sends the retained state of a changed attribute.
func (s *Service) publishState(c AttributeChange) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		return
	}
	topic := mqtt.Topics{}.AttributeState(c.DisplayID, string(c.Kind))
	msg := StateMessage{
		Value:     c.Value.Raw,
		Label:     c.Label,
		Display:   c.Display,
		Source:    c.Source,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.PublishJSON(topic, msg, true); err != nil {
		s.logger.Warn("publishing attribute state failed", "topic", topic, "error", err)
	}
}

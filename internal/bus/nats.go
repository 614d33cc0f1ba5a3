package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectMachineCreated  = "machine.created"
	SubjectMachineUpdated  = "machine.updated"
	SubjectMachineEnabled  = "machine.enabled"
	SubjectMachineDisabled = "machine.disabled"
	SubjectMachineDeleted  = "machine.deleted"
	SubjectStateChanged    = "machine.state.changed"
	SubjectAlert           = "machine.alert"
)

// MachineEvent is the lifecycle payload the API publishes and the
// worker reconciles on.
type MachineEvent struct {
	UnitID string `json:"unit_id"`
}

// StateChangeEvent announces a classified state transition.
type StateChangeEvent struct {
	UnitID   string    `json:"unit_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	TS       time.Time `json:"ts"`
	MeanTemp float64   `json:"mean_temp"`
	Trend    *float64  `json:"trend,omitempty"`
}

// AlertEvent announces an alert raised for a machine.
type AlertEvent struct {
	UnitID  string    `json:"unit_id"`
	State   string    `json:"state"`
	Message string    `json:"message"`
	TS      time.Time `json:"ts"`
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

func (s *Subscriber) Subscribe(subject string, handler func(MachineEvent)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt MachineEvent
		_ = json.Unmarshal(msg.Data, &evt)
		handler(evt)
	})
}

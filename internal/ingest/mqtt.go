package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// MQTTSource subscribes to one machine's telemetry topic and pushes
// decoded samples into the engine as they arrive.
type MQTTSource struct {
	client    paho.Client
	topic     string
	machineID string
}

func NewMQTTSource(opts MQTTOptions, machineID string, spec SourceSpec) (*MQTTSource, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "state-ingest-" + machineID
	}
	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if opts.Username != "" {
		copts.SetUsername(opts.Username)
		copts.SetPassword(opts.Password)
	}

	client := paho.NewClient(copts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTSource{client: client, topic: spec.Topic, machineID: machineID}, nil
}

func (s *MQTTSource) Kind() string { return KindMQTT }

func (s *MQTTSource) Start(sink func(classify.Sample), onError func(error)) error {
	handler := func(_ paho.Client, msg paho.Message) {
		sample, err := ParseMQTTPayload(s.machineID, msg.Payload())
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("topic %s: %w", msg.Topic(), err))
			}
			return
		}
		sink(sample)
	}
	// QoS 1 (at-least-once) - a lost sample breaks trend continuity,
	// a duplicate only repeats one evaluation
	token := s.client.Subscribe(s.topic, 1, handler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}

// mqttPayload is the telemetry document devices publish. Pointer
// fields distinguish an absent reading from a real zero; an absent
// reading must never classify as if the machine reported 0.
type mqttPayload struct {
	Timestamp    time.Time `json:"timestamp"`
	RPM          *float64  `json:"rpm"`
	Pressure     *float64  `json:"pressure"`
	Temperatures []float64 `json:"temperatures"`
}

func ParseMQTTPayload(machineID string, payload []byte) (classify.Sample, error) {
	var p mqttPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return classify.Sample{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Timestamp.IsZero() {
		return classify.Sample{}, fmt.Errorf("payload has no timestamp")
	}
	if p.RPM == nil {
		return classify.Sample{}, fmt.Errorf("payload has no rpm reading")
	}
	if p.Pressure == nil {
		return classify.Sample{}, fmt.Errorf("payload has no pressure reading")
	}
	return classify.Sample{
		MachineID:    machineID,
		Timestamp:    p.Timestamp.UTC(),
		RPM:          *p.RPM,
		Pressure:     *p.Pressure,
		Temperatures: p.Temperatures,
	}, nil
}

// Package ingest provides the ingestion collaborators that feed the
// classification engine: SQL telemetry pollers (MSSQL, MySQL,
// Postgres), an MQTT subscriber and an OPC-UA reader. Sources deliver
// classify.Sample values in time order; everything downstream of the
// sample boundary lives in the engine.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

const (
	KindSQL   = "sql"
	KindMQTT  = "mqtt"
	KindOPCUA = "opcua"
)

// SourceSpec is the machine's source document (source_json). Exactly
// one kind is active; the other kinds' fields stay empty.
type SourceSpec struct {
	Kind string `json:"kind"`

	ConnectionRef      string   `json:"connectionRef,omitempty"`
	Table              string   `json:"table,omitempty"`
	TimestampColumn    string   `json:"timestampColumn,omitempty"`
	RPMColumn          string   `json:"rpmColumn,omitempty"`
	PressureColumn     string   `json:"pressureColumn,omitempty"`
	TemperatureColumns []string `json:"temperatureColumns,omitempty"`
	MachineColumn      string   `json:"machineColumn,omitempty"`
	MachineKey         string   `json:"machineKey,omitempty"`

	Topic string `json:"topic,omitempty"`

	RPMNode          string   `json:"rpmNode,omitempty"`
	PressureNode     string   `json:"pressureNode,omitempty"`
	TemperatureNodes []string `json:"temperatureNodes,omitempty"`
}

// Source is any ingestion adapter bound to one machine.
type Source interface {
	Kind() string
	Close() error
}

// Fetcher is a polled source: it returns samples strictly newer than
// since, ascending, at most limit per call.
type Fetcher interface {
	Source
	Fetch(ctx context.Context, since time.Time, limit int) ([]classify.Sample, error)
}

// Streamer is a push source: Start subscribes and invokes sink for
// every arriving sample until Close.
type Streamer interface {
	Source
	Start(sink func(classify.Sample), onError func(error)) error
}

// ConnectionConfig carries decrypted telemetry-database credentials.
type ConnectionConfig struct {
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionResolver turns a connectionRef into usable credentials.
// The worker implements it over the repository plus the encryptor.
type ConnectionResolver interface {
	Resolve(ctx context.Context, ref string) (ConnectionConfig, error)
}

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

type OPCUAOptions struct {
	Endpoint       string
	SecurityMode   string
	SecurityPolicy string
	Username       string
	Password       string
}

// Builder constructs the right source for a machine's spec from the
// deployment's configured endpoints.
type Builder struct {
	Resolver ConnectionResolver
	MQTT     *MQTTOptions
	OPCUA    *OPCUAOptions
	Limits   Limits
}

func (b *Builder) Build(ctx context.Context, machineID string, spec SourceSpec) (Source, error) {
	switch strings.ToLower(spec.Kind) {
	case KindSQL:
		if b.Resolver == nil {
			return nil, fmt.Errorf("sql source: no connection resolver configured")
		}
		cfg, err := b.Resolver.Resolve(ctx, spec.ConnectionRef)
		if err != nil {
			return nil, fmt.Errorf("resolve connection %s: %w", spec.ConnectionRef, err)
		}
		client, err := OpenSQL(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLSource(client, machineID, spec), nil
	case KindMQTT:
		if b.MQTT == nil {
			return nil, fmt.Errorf("mqtt source: no broker configured")
		}
		return NewMQTTSource(*b.MQTT, machineID, spec)
	case KindOPCUA:
		if b.OPCUA == nil {
			return nil, fmt.Errorf("opcua source: no endpoint configured")
		}
		return NewOPCUASource(ctx, *b.OPCUA, machineID, spec)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", spec.Kind)
	}
}

package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// OPCUASource reads one machine's tags from an OPC UA server. Each
// Fetch issues a single Read of every configured node so the rpm,
// pressure and zone values of a sample come from the same service
// call instead of being joined from per-node change notifications.
type OPCUASource struct {
	client    *opcua.Client
	machineID string
	nodeIDs   []string
	nodes     []*ua.ReadValueID
	zones     int
}

func NewOPCUASource(ctx context.Context, opts OPCUAOptions, machineID string, spec SourceSpec) (*OPCUASource, error) {
	clientOpts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(opts.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(opts.SecurityPolicy)),
		opcua.ApplicationName("machine-state-worker"),
		opcua.AutoReconnect(true),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts, opcua.AuthUsername(opts.Username, opts.Password))
	} else {
		clientOpts = append(clientOpts, opcua.AuthAnonymous())
	}

	client, err := opcua.NewClient(opts.Endpoint, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	names := append([]string{spec.RPMNode, spec.PressureNode}, spec.TemperatureNodes...)
	nodes := make([]*ua.ReadValueID, 0, len(names))
	for _, name := range names {
		id, err := ua.ParseNodeID(name)
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = client.Close(closeCtx)
			cancel()
			return nil, fmt.Errorf("parse node id %q: %w", name, err)
		}
		nodes = append(nodes, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}

	return &OPCUASource{
		client:    client,
		machineID: machineID,
		nodeIDs:   names,
		nodes:     nodes,
		zones:     len(spec.TemperatureNodes),
	}, nil
}

func (s *OPCUASource) Kind() string { return KindOPCUA }

// Fetch returns at most one sample: the server's current values,
// stamped with the newest source timestamp. When that timestamp has
// not advanced past since there is no new information and the result
// is empty.
func (s *OPCUASource) Fetch(ctx context.Context, since time.Time, limit int) ([]classify.Sample, error) {
	req := &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnSource,
		NodesToRead:        s.nodes,
	}
	resp, err := s.client.Read(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opcua read: %w", err)
	}
	if len(resp.Results) != len(s.nodes) {
		return nil, fmt.Errorf("opcua read returned %d results for %d nodes", len(resp.Results), len(s.nodes))
	}

	values := make([]float64, len(resp.Results))
	var ts time.Time
	for i, res := range resp.Results {
		if res.Status != ua.StatusOK {
			return nil, fmt.Errorf("node %s: %s", s.nodeIDs[i], res.Status)
		}
		f, ok := variantToFloat(res.Value)
		if !ok {
			f = math.NaN()
		}
		values[i] = f
		if res.SourceTimestamp.After(ts) {
			ts = res.SourceTimestamp
		}
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	if !ts.After(since) {
		return nil, nil
	}

	sample := classify.Sample{
		MachineID:    s.machineID,
		Timestamp:    ts,
		RPM:          values[0],
		Pressure:     values[1],
		Temperatures: values[2:],
	}
	return []classify.Sample{sample}, nil
}

func (s *OPCUASource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Close(ctx)
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

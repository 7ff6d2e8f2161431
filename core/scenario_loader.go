package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/manet-sim/model"
)

// Format is the encoding of a scenario file.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFromPath picks the format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: unsupported scenario extension %q", ErrConfiguration, filepath.Ext(path))
	}
}

// file shapes; unexported so the on-disk layout can evolve separately
// from Scenario.
type scenarioFile struct {
	Name        string                `yaml:"name" json:"name"`
	StopTime    float64               `yaml:"stop_time" json:"stop_time"`
	Range       float64               `yaml:"range" json:"range"`
	Routing     string                `yaml:"routing" json:"routing"`
	MaxHops     int                   `yaml:"max_hops" json:"max_hops"`
	LineOfSight bool                  `yaml:"line_of_sight" json:"line_of_sight"`
	MinElevDeg  float64               `yaml:"min_elevation_deg" json:"min_elevation_deg"`
	AddressBase string                `yaml:"address_base" json:"address_base"`
	Nodes       []nodeFile            `yaml:"nodes" json:"nodes"`
	Mobility    []model.MobilityEvent `yaml:"mobility" json:"mobility"`
	Tracks      []trackFile           `yaml:"tracks" json:"tracks"`
	Flows       []flowFile            `yaml:"flows" json:"flows"`
	Sinks       []sinkFile            `yaml:"sinks" json:"sinks"`
}

type nodeFile struct {
	Name     string         `yaml:"name" json:"name"`
	Position model.Position `yaml:"position" json:"position"`
}

type trackFile struct {
	Node  model.NodeID `yaml:"node" json:"node"`
	TLE1  string       `yaml:"tle1" json:"tle1"`
	TLE2  string       `yaml:"tle2" json:"tle2"`
	Epoch time.Time    `yaml:"epoch" json:"epoch"`
	Start float64      `yaml:"start" json:"start"`
	Stop  float64      `yaml:"stop" json:"stop"`
	Step  float64      `yaml:"step" json:"step"`
}

type flowFile struct {
	ID          string          `yaml:"id" json:"id"`
	Source      model.NodeID    `yaml:"source" json:"source"`
	Destination destinationFile `yaml:"destination" json:"destination"`
	PacketSize  int             `yaml:"packet_size" json:"packet_size"`
	DataRate    dataRate        `yaml:"data_rate" json:"data_rate"`
	PacketCount int             `yaml:"packet_count" json:"packet_count"`
	TotalBytes  int             `yaml:"total_bytes" json:"total_bytes"`
	Start       float64         `yaml:"start" json:"start"`
	Stop        float64         `yaml:"stop" json:"stop"`
}

// destinationFile names either a node, whose assigned address is used,
// or an explicit address.
type destinationFile struct {
	Node    *model.NodeID `yaml:"node" json:"node"`
	Address string        `yaml:"address" json:"address"`
	Port    uint16        `yaml:"port" json:"port"`
}

type sinkFile struct {
	Node  model.NodeID `yaml:"node" json:"node"`
	Port  uint16       `yaml:"port" json:"port"`
	Start float64      `yaml:"start" json:"start"`
	Stop  float64      `yaml:"stop" json:"stop"`
}

// dataRate accepts a number of bits per second or a string such as
// "250Kbps".
type dataRate float64

func (d *dataRate) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: data_rate must be a scalar (line %d)", ErrConfiguration, value.Line)
	}
	rate, err := ParseDataRate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = dataRate(rate)
	return nil
}

func (d *dataRate) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		if !(f > 0) {
			return fmt.Errorf("%w: data_rate %s", ErrConfiguration, b)
		}
		*d = dataRate(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: data_rate %s", ErrConfiguration, b)
	}
	rate, err := ParseDataRate(s)
	if err != nil {
		return err
	}
	*d = dataRate(rate)
	return nil
}

// LoadScenarioFile reads a YAML or JSON scenario chosen by extension.
func LoadScenarioFile(path string) (Scenario, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Scenario{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("LoadScenarioFile: %w", err)
	}
	defer f.Close()

	sc, err := LoadScenario(f, format)
	if err != nil {
		return Scenario{}, err
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// LoadScenario decodes a scenario from r. Unknown keys are rejected.
// Flow destinations given by node are resolved to the node's assigned
// address. The result still goes through NewSimulationEngine validation.
func LoadScenario(r io.Reader, format Format) (Scenario, error) {
	var payload scenarioFile
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			return Scenario{}, fmt.Errorf("LoadScenario: decode failed: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return Scenario{}, fmt.Errorf("LoadScenario: decode failed: %w", err)
		}
	default:
		return Scenario{}, fmt.Errorf("%w: unknown scenario format %d", ErrConfiguration, format)
	}
	return payload.toScenario()
}

func (p scenarioFile) toScenario() (Scenario, error) {
	sc := Scenario{
		Name:     p.Name,
		StopTime: p.StopTime,
		Range:    p.Range,
		Routing:  RoutingMode(strings.ToLower(p.Routing)),
		MaxHops:  p.MaxHops,
		Mobility: p.Mobility,

		LineOfSight:     p.LineOfSight,
		MinElevationDeg: p.MinElevDeg,
	}
	if p.AddressBase != "" {
		prefix, err := netip.ParsePrefix(p.AddressBase)
		if err != nil {
			return Scenario{}, fmt.Errorf("%w: address_base: %v", ErrConfiguration, err)
		}
		sc.AddressBase = prefix
	}

	for _, n := range p.Nodes {
		sc.Nodes = append(sc.Nodes, NodeConfig{Name: n.Name, Position: n.Position})
	}
	for _, t := range p.Tracks {
		sc.Tracks = append(sc.Tracks, TrackConfig{
			Node:  t.Node,
			Line1: t.TLE1,
			Line2: t.TLE2,
			Epoch: t.Epoch,
			Start: t.Start,
			Stop:  t.Stop,
			Step:  t.Step,
		})
	}
	for _, s := range p.Sinks {
		sc.Sinks = append(sc.Sinks, model.SinkSpec{Node: s.Node, Port: s.Port, Start: s.Start, Stop: s.Stop})
	}

	for i, f := range p.Flows {
		dst, err := sc.resolveDestination(f.Destination)
		if err != nil {
			return Scenario{}, fmt.Errorf("flow %d: %w", i, err)
		}
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("flow-%d", i)
		}
		sc.Flows = append(sc.Flows, model.FlowSpec{
			ID:          id,
			Source:      f.Source,
			Destination: dst,
			PacketSize:  f.PacketSize,
			DataRate:    float64(f.DataRate),
			PacketCount: f.PacketCount,
			TotalBytes:  f.TotalBytes,
			Start:       f.Start,
			Stop:        f.Stop,
		})
	}
	return sc, nil
}

func (sc Scenario) resolveDestination(d destinationFile) (netip.AddrPort, error) {
	switch {
	case d.Node != nil && d.Address != "":
		return netip.AddrPort{}, fmt.Errorf("%w: destination sets both node and address", ErrConfiguration)
	case d.Node != nil:
		if int(*d.Node) < 0 || int(*d.Node) >= len(sc.Nodes) {
			return netip.AddrPort{}, fmt.Errorf("%w: destination %s", ErrUnknownNode, *d.Node)
		}
		addr, err := sc.Address(*d.Node)
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(addr, d.Port), nil
	case d.Address != "":
		addr, err := netip.ParseAddr(d.Address)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("%w: destination address: %v", ErrConfiguration, err)
		}
		return netip.AddrPortFrom(addr, d.Port), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("%w: destination needs a node or an address", ErrConfiguration)
	}
}

package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/signalsfoundry/manet-sim/model"
)

// SinkReport is the reception log of one sink, in arrival order.
type SinkReport struct {
	Node    model.NodeID            `json:"node"`
	Port    uint16                  `json:"port"`
	Records []model.ReceptionRecord `json:"records"`
}

// Bytes sums the sizes of all received packets.
func (s SinkReport) Bytes() int {
	total := 0
	for _, r := range s.Records {
		total += r.Size
	}
	return total
}

// Throughput returns the received bit rate over [from, to).
func (s SinkReport) Throughput(from, to float64) float64 {
	return throughput(s.Records, from, to)
}

// FlowStats summarises one flow end to end.
type FlowStats struct {
	FlowID      string             `json:"flow_id"`
	Source      string             `json:"source"`
	Destination string             `json:"destination"`
	TxPackets   int                `json:"tx_packets"`
	TxBytes     int                `json:"tx_bytes"`
	RxPackets   int                `json:"rx_packets"`
	RxBytes     int                `json:"rx_bytes"`
	LostPackets int                `json:"lost_packets"`
	Drops       map[DropReason]int `json:"drops,omitempty"`
	FirstTx     float64            `json:"first_tx"`
	LastTx      float64            `json:"last_tx"`
	FirstRx     float64            `json:"first_rx"`
	LastRx      float64            `json:"last_rx"`
	// Throughput is RxBytes over the span from first transmission to last
	// reception, in bits per second.
	Throughput float64 `json:"throughput_bps"`
}

func (s *FlowStats) recordDelivery(d Delivery) {
	if !d.Delivered {
		if s.Drops == nil {
			s.Drops = make(map[DropReason]int)
		}
		s.Drops[d.Reason]++
		return
	}
	if s.RxPackets == 0 {
		s.FirstRx = d.At
	}
	s.LastRx = d.At
	s.RxPackets++
	s.RxBytes += d.Packet.Size
}

func (s *FlowStats) finish(f *Flow) {
	s.TxPackets, s.TxBytes = f.Sent()
	s.FirstTx, s.LastTx, _ = f.TxWindow()
	s.LostPackets = s.TxPackets - s.RxPackets
	if span := s.LastRx - s.FirstTx; s.RxPackets > 0 && span > 0 {
		s.Throughput = float64(s.RxBytes*8) / span
	}
}

// Results is the outcome of one run.
type Results struct {
	Scenario       string       `json:"scenario"`
	StopTime       float64      `json:"stop_time"`
	EventsExecuted int          `json:"events_executed"`
	Sinks          []SinkReport `json:"sinks"`
	Flows          []FlowStats  `json:"flows"`
}

// Receptions returns everything received by node, across its sinks, in
// arrival order.
func (r *Results) Receptions(node model.NodeID) []model.ReceptionRecord {
	var out []model.ReceptionRecord
	for _, s := range r.Sinks {
		if s.Node == node {
			out = append(out, s.Records...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Log returns every reception of the run in arrival order. Records with
// equal times keep sink order.
func (r *Results) Log() []model.ReceptionRecord {
	var out []model.ReceptionRecord
	for _, s := range r.Sinks {
		out = append(out, s.Records...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// TotalPackets counts packets received by all sinks.
func (r *Results) TotalPackets() int {
	total := 0
	for _, s := range r.Sinks {
		total += len(s.Records)
	}
	return total
}

// TotalBytes sums bytes received by all sinks.
func (r *Results) TotalBytes() int {
	total := 0
	for _, s := range r.Sinks {
		total += s.Bytes()
	}
	return total
}

// Throughput returns the aggregate received bit rate over [from, to).
func (r *Results) Throughput(from, to float64) float64 {
	return throughput(r.Log(), from, to)
}

// Flow returns the statistics of flow id.
func (r *Results) Flow(id string) (FlowStats, bool) {
	for _, f := range r.Flows {
		if f.FlowID == id {
			return f, true
		}
	}
	return FlowStats{}, false
}

func throughput(records []model.ReceptionRecord, from, to float64) float64 {
	if !(to > from) {
		return 0
	}
	bytes := 0
	for _, rec := range records {
		if rec.Time >= from && rec.Time < to {
			bytes += rec.Size
		}
	}
	return float64(bytes*8) / (to - from)
}

// WriteTSV writes one "time<TAB>size" line per reception in arrival order.
// Times use six significant digits.
func (r *Results) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, rec := range r.Log() {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", strconv.FormatFloat(rec.Time, 'g', 6, 64), rec.Size); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteJSON writes the results as indented JSON.
func (r *Results) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

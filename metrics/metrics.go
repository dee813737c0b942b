// Package metrics exports test statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockcast/mcastcheck/stats"
)

const namespace = "mcastcheck"

type counter struct {
	desc  *prometheus.Desc
	vtype prometheus.ValueType
	value func(stats.Snapshot) int64
}

// Collector reads a Stats engine on every scrape.
type Collector struct {
	st       *stats.Stats
	counters []counter
	latency  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector labels every metric with role ("transmit", "receive" or "replay").
func NewCollector(st *stats.Stats, role string) *Collector {
	labels := prometheus.Labels{"role": role}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}
	c := &Collector{
		st: st,
		latency: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "latency_microseconds"),
			"Latency of completed messages in microseconds", []string{"stat"}, labels),
	}
	add := func(name, help string, vtype prometheus.ValueType, value func(stats.Snapshot) int64) {
		c.counters = append(c.counters, counter{desc: desc(name, help), vtype: vtype, value: value})
	}

	add("messages_expected", "Messages the test expects", prometheus.GaugeValue,
		func(s stats.Snapshot) int64 { return s.MessagesExpected })
	add("messages_complete_total", "Messages received with every packet", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.MessagesComplete })
	add("messages_lost_total", "Messages abandoned incomplete", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.MessagesLost })
	add("packets_received_total", "Well formed packets received", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsReceived })
	add("packets_duplicate_total", "Packets received more than once", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsDuplicate })
	add("packets_malformed_total", "Datagrams discarded as malformed", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsMalformed })
	add("packets_out_of_order_total", "Packets that arrived behind a later one", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsOutOfOrder })
	add("messages_sent_total", "Messages emitted", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.MessagesSent })
	add("packets_sent_total", "Packets handed to the network", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsSent })
	add("packets_dropped_total", "Packets withheld by loss injection", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.PacketsDropped })
	add("bytes_sent_total", "Datagram bytes handed to the network", prometheus.CounterValue,
		func(s stats.Snapshot) int64 { return s.BytesSent })
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, ctr := range c.counters {
		ch <- ctr.desc
	}
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.st.Snapshot()
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(ctr.desc, ctr.vtype, float64(ctr.value(snap)))
	}
	if snap.Latency.Count == 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, float64(snap.Latency.Min), "min")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, snap.Latency.Avg(), "avg")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, float64(snap.Latency.Max), "max")
}

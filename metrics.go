// Copyright 2020 James P. Ancona

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

// 	http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streamcore

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector exports a Streamer's telemetry as Prometheus metrics:
// data rates as gauges, channel counters as counters. Register it with a
// prometheus.Registry to surface it on a /metrics endpoint.
type MetricsCollector struct {
	streamer *Streamer

	rxRate    *prometheus.Desc
	txRate    *prometheus.Desc
	underflow *prometheus.Desc
	overflow  *prometheus.Desc
	pktLost   *prometheus.Desc
}

// NewMetricsCollector returns a collector for s's telemetry.
func NewMetricsCollector(s *Streamer) *MetricsCollector {
	return &MetricsCollector{
		streamer: s,
		rxRate: prometheus.NewDesc("streamcore_rx_data_rate_bps", "Measured RX data rate in bytes per second.", nil, nil),
		txRate: prometheus.NewDesc("streamcore_tx_data_rate_bps", "Measured TX data rate in bytes per second.", nil, nil),
		underflow: prometheus.NewDesc("streamcore_underflow_total", "Count of FIFO starvation events.", []string{"direction", "channel"}, nil),
		overflow:  prometheus.NewDesc("streamcore_overflow_total", "Count of FIFO overflow drops.", []string{"direction", "channel"}, nil),
		pktLost:   prometheus.NewDesc("streamcore_packet_lost_total", "Count of lost FPGA packets.", []string{"direction", "channel"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rxRate
	ch <- c.txRate
	ch <- c.underflow
	ch <- c.overflow
	ch <- c.pktLost
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.streamer.Stats()
	ch <- prometheus.MustNewConstMetric(c.rxRate, prometheus.GaugeValue, stats.RxDataRateBps)
	ch <- prometheus.MustNewConstMetric(c.txRate, prometheus.GaugeValue, stats.TxDataRateBps)
	for i, counters := range stats.RxCounters {
		label := channelLabel(i)
		ch <- prometheus.MustNewConstMetric(c.underflow, prometheus.CounterValue, float64(counters.Underflow), "rx", label)
		ch <- prometheus.MustNewConstMetric(c.overflow, prometheus.CounterValue, float64(counters.Overflow), "rx", label)
		ch <- prometheus.MustNewConstMetric(c.pktLost, prometheus.CounterValue, float64(counters.PktLost), "rx", label)
	}
	for i, counters := range stats.TxCounters {
		label := channelLabel(i)
		ch <- prometheus.MustNewConstMetric(c.underflow, prometheus.CounterValue, float64(counters.Underflow), "tx", label)
		ch <- prometheus.MustNewConstMetric(c.overflow, prometheus.CounterValue, float64(counters.Overflow), "tx", label)
		ch <- prometheus.MustNewConstMetric(c.pktLost, prometheus.CounterValue, float64(counters.PktLost), "tx", label)
	}
}

func channelLabel(i int) string {
	if i == 0 {
		return "0"
	}
	return "1"
}

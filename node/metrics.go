package node

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a small optional gauge set the coordinator updates as it
// runs. A nil *Metrics is valid everywhere it's used — wiring metrics up
// is opt-in, never required for correctness.
type Metrics struct {
	ConnectedPeers   prometheus.Gauge
	HeaderTipHeight  prometheus.Gauge
	CFHeaderTipHeight prometheus.Gauge
	BlockQueueDepth  prometheus.Gauge
}

// NewMetrics registers a gauge set on reg and returns it. Pass a nil reg
// to skip registration (the gauges still work as plain counters, just
// unexported to any scrape endpoint).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_connected_peers",
			Help: "Number of currently connected peers.",
		}),
		HeaderTipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_header_tip_height",
			Help: "Height of the best known header chain tip.",
		}),
		CFHeaderTipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_cfheader_tip_height",
			Help: "Height of the committed compact-filter-header chain tip.",
		}),
		BlockQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_block_queue_depth",
			Help: "Number of outstanding full-block requests.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ConnectedPeers, m.HeaderTipHeight, m.CFHeaderTipHeight, m.BlockQueueDepth)
	}
	return m
}

func (m *Metrics) setConnectedPeers(n int) {
	if m == nil {
		return
	}
	m.ConnectedPeers.Set(float64(n))
}

func (m *Metrics) setHeaderTip(height int32) {
	if m == nil {
		return
	}
	m.HeaderTipHeight.Set(float64(height))
}

func (m *Metrics) setCFHeaderTip(height int32) {
	if m == nil {
		return
	}
	m.CFHeaderTipHeight.Set(float64(height))
}

func (m *Metrics) setBlockQueueDepth(n int) {
	if m == nil {
		return
	}
	m.BlockQueueDepth.Set(float64(n))
}

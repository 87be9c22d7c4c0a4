package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewCounter 创建并注册 Counter，同名指标只能创建一次
func (c *Client) NewCounter(name, help string, labels []string) (*prometheus.CounterVec, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	if _, loaded := c.counters.LoadOrStore(name, nil); loaded {
		return nil, ErrMetricExists
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if err := c.registry.Register(counter); err != nil {
		c.counters.Delete(name)
		return nil, err
	}

	c.counters.Store(name, counter)
	return counter, nil
}

// GetCounter 获取已注册的 Counter
func (c *Client) GetCounter(name string) (*prometheus.CounterVec, bool) {
	v, ok := c.counters.Load(name)
	if !ok || v == nil {
		return nil, false
	}
	return v.(*prometheus.CounterVec), true
}

// NewGauge 创建并注册 Gauge
func (c *Client) NewGauge(name, help string, labels []string) (*prometheus.GaugeVec, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	if _, loaded := c.gauges.LoadOrStore(name, nil); loaded {
		return nil, ErrMetricExists
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	if err := c.registry.Register(gauge); err != nil {
		c.gauges.Delete(name)
		return nil, err
	}

	c.gauges.Store(name, gauge)
	return gauge, nil
}

// GetGauge 获取已注册的 Gauge
func (c *Client) GetGauge(name string) (*prometheus.GaugeVec, bool) {
	v, ok := c.gauges.Load(name)
	if !ok || v == nil {
		return nil, false
	}
	return v.(*prometheus.GaugeVec), true
}

// NewHistogram 创建并注册 Histogram，buckets 为 nil 时使用 DefBuckets
func (c *Client) NewHistogram(name, help string, labels []string, buckets []float64) (*prometheus.HistogramVec, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	if _, loaded := c.histograms.LoadOrStore(name, nil); loaded {
		return nil, ErrMetricExists
	}
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	if err := c.registry.Register(histogram); err != nil {
		c.histograms.Delete(name)
		return nil, err
	}

	c.histograms.Store(name, histogram)
	return histogram, nil
}

// RegisterCollector 注册自定义采集器
func (c *Client) RegisterCollector(collector prometheus.Collector) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	return c.registry.Register(collector)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Preview render outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeAbort   = "abort"
	OutcomeFailure = "failure"
)

var (
	previewRenderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvforge",
			Subsystem: "editor",
			Name:      "preview_renders_total",
			Help:      "预览渲染结果总数（按结局分类）。",
		},
		[]string{"outcome"},
	)

	autoSizeRequestTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvforge",
			Subsystem: "editor",
			Name:      "autosize_requests_total",
			Help:      "自动排版请求总数。",
		},
	)
)

// ObservePreviewRender 记录一次预览渲染的结局。
func ObservePreviewRender(outcome string) {
	previewRenderTotal.WithLabelValues(outcome).Inc()
}

// ObserveAutoSizeRequest 记录一次自动排版请求。
func ObserveAutoSizeRequest() {
	autoSizeRequestTotal.Inc()
}

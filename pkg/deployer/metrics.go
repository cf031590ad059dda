package deployer

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	flotmetrics "github.com/flotilla-deploy/flotilla/pkg/metrics"
)

var (
	deployDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "flotilla",
		Subsystem: "deployer",
		Name:      "deploy_duration_seconds",
		Help:      "Deploy method duration in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{flotmetrics.LabelSuccess, flotmetrics.LabelDryRun})
	stageDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "flotilla",
		Subsystem: "deployer",
		Name:      "deploy_stage_duration_seconds",
		Help:      "Duration in seconds of each stage of a deploy, including dry runs.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{flotmetrics.LabelStage})
)

func NewStageTimer(stage string) *metrics.Timer {
	return metrics.NewTimer(stageDuration.With(flotmetrics.LabelStage, stage))
}

func ObserveDeploy(start time.Time, success, dryRun bool) {
	deployDuration.With(
		flotmetrics.LabelSuccess, fmt.Sprint(success),
		flotmetrics.LabelDryRun, fmt.Sprint(dryRun),
	).Observe(time.Since(start).Seconds())
}

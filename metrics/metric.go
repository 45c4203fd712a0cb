package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ObjectDB"

var (
	Registry = prometheus.NewRegistry()

	Commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "commits_total",
			Help:      "physical column store commits, by outcome",
		},
		[]string{"result"},
	)
	MutationsPerCommit = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "mutations_per_commit",
			Help:      "distinct column mutations applied per commit",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
	)
	ObjectResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "object",
			Name:      "results_total",
			Help:      "per object results, by operation and status",
		},
		[]string{"op", "status"},
	)
	ShardCacheRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shard_cache",
			Name:      "refreshes_total",
			Help:      "shard map reloads from the terms store, by table",
		},
		[]string{"table"},
	)
	ShardsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shard_cache",
			Name:      "shards_created_total",
			Help:      "shard registrations written, by table",
		},
		[]string{"table"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Commits,
		MutationsPerCommit,
		ObjectResults,
		ShardCacheRefreshes,
		ShardsCreated,
	)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 检索与摄取指标
var (
	RetrievalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "retrievals_total",
		Help:      "Total number of context retrievals",
	})

	RetrievalsEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "retrievals_empty_total",
		Help:      "Retrievals that produced an empty context window",
	})

	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "chunks_ingested_total",
		Help:      "Total number of document chunks written to the vector store",
	})

	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatbot",
		Name:      "generation_failures_total",
		Help:      "Answer generation requests that failed after retries",
	})
)

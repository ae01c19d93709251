package cache

import "github.com/prometheus/client_golang/prometheus"

const (
	tierMemory = "memory"
	tierRedis  = "redis"
)

var (
	hits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_hits_total", Help: "Cache hits by tier"},
		[]string{"tier"},
	)
	misses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_misses_total", Help: "Cache misses by tier"},
		[]string{"tier"},
	)
	evictions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cache_evictions_total", Help: "Expired entries swept from the memory tier"},
	)
)

func init() { prometheus.MustRegister(hits, misses, evictions) }

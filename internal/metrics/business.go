package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arematv_batch_size",
		Help:    "Number of unique keys per batched fetch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	}, []string{"batcher"})

	programRollovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arematv_program_rollovers_total",
		Help: "Program transitions observed by followers",
	}, []string{"kind"}) // kind=started|rollover|archived

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arematv_cache_lookups_total",
		Help: "Read-through cache lookups by outcome",
	}, []string{"result"}) // result=hit|miss

	playlistsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arematv_playlists_served_total",
		Help: "HLS playlists generated by kind",
	}, []string{"kind"}) // kind=episode|channel

	embeddingsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arematv_embeddings_stored_total",
		Help: "Series embeddings written to the store",
	})
)

// ObserveBatch records the size of one flushed batch.
func ObserveBatch(batcher string, size int) {
	batchSize.WithLabelValues(batcher).Observe(float64(size))
}

// RecordRollover counts a follower event.
func RecordRollover(kind string) {
	programRollovers.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordPlaylist counts a generated playlist.
func RecordPlaylist(kind string) {
	playlistsServed.WithLabelValues(kind).Inc()
}

// AddEmbeddings counts stored series embeddings.
func AddEmbeddings(n int) {
	embeddingsStored.Add(float64(n))
}

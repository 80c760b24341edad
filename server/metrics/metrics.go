package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

const namespace = "autodelete"

var (
	sharedContainer *Container
	once            sync.Once
)

// Container holds the auto-delete collectors. It implements app.Observer.
type Container struct {
	Sweeps           prometheus.Counter
	Messages         *prometheus.CounterVec
	CorruptDocuments prometheus.Counter
}

// NewContainer returns the process wide container, registering it on first use.
func NewContainer() *Container {
	once.Do(func() {
		sharedContainer = newContainer()
	})
	return sharedContainer
}

func newContainer() *Container {
	container := &Container{}
	container.Sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Number of completed queue sweeps",
	})
	container.Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Due messages handled by sweeps, by outcome",
	}, []string{"outcome"})
	container.CorruptDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "corrupt_documents_total",
		Help:      "Reads of a queue document that could not be decoded",
	})
	return container
}

func (c *Container) ObserveSweep(res app.SweepResult) {
	c.Sweeps.Inc()
	c.add("deleted", res.Deleted)
	c.add("gone", res.Gone)
	c.add("retried", res.Retried)
	c.add("dropped", res.Dropped)
	c.add("skipped", res.Skipped)
}

func (c *Container) ObserveCorruptDocument() {
	c.CorruptDocuments.Inc()
}

func (c *Container) add(outcome string, n int) {
	if n > 0 {
		c.Messages.WithLabelValues(outcome).Add(float64(n))
	}
}

// NewPrometheusHandler serves the default registry.
func NewPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

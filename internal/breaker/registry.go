package breaker

import (
	"sort"
	"sync"
	"time"
)

// Well-known service names guarded by breakers.
const (
	// ServiceLLM is the primary LLM completion provider.
	ServiceLLM = "llm"
	// ServiceLLMFallback is the fallback LLM completion provider.
	ServiceLLMFallback = "llm_fallback"
	// ServiceEmbeddings is the embeddings provider.
	ServiceEmbeddings = "embeddings"
	// ServiceDatastore is the primary datastore.
	ServiceDatastore = "datastore"
	// ServiceCache is the cache store.
	ServiceCache = "cache"
)

// SearchService returns the service name for a named web search provider.
func SearchService(provider string) string {
	return "search:" + provider
}

// Registry owns one circuit breaker per external service, lazily
// constructed on first use. It is created at the composition root and
// passed by handle to anything making external calls; there are no hidden
// module-level globals. No lock spans multiple breakers: the registry lock
// only guards the map.
type Registry struct {
	mu          sync.Mutex
	breakers    map[string]*CircuitBreaker
	configs     map[string]Config
	classifiers map[string]Classifier
	defaults    Config
}

// NewRegistry creates a registry using the given defaults for services
// without dedicated configuration.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		breakers:    make(map[string]*CircuitBreaker),
		configs:     make(map[string]Config),
		classifiers: make(map[string]Classifier),
		defaults:    defaults,
	}
}

// Configure sets the per-service breaker configuration. It must be called
// before the first Get for that service to take effect.
func (r *Registry) Configure(service string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[service] = cfg
}

// SetClassifier sets the fault classifier adapter for a service. It must be
// called before the first Get for that service to take effect.
func (r *Registry) SetClassifier(service string, classifier Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers[service] = classifier
}

// Get returns the breaker for the named service, constructing it on first
// use with the service's configured tuning and classifier.
func (r *Registry) Get(service string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[service]; ok {
		return b
	}

	cfg, ok := r.configs[service]
	if !ok {
		cfg = r.defaults
	}
	b := New(service, cfg, r.classifiers[service])
	r.breakers[service] = b
	return b
}

// Status is a point-in-time view of one breaker for reporting.
type Status struct {
	Service              string
	State                State
	Counts               Counts
	LastFaultType        FaultType
	TimeSinceStateChange time.Duration
}

// Snapshot returns the status of every constructed breaker, sorted by
// service name.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(breakers))
	for _, b := range breakers {
		statuses = append(statuses, Status{
			Service:              b.Name(),
			State:                b.State(),
			Counts:               b.Counts(),
			LastFaultType:        b.LastFaultType(),
			TimeSinceStateChange: b.TimeSinceStateChange(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Service < statuses[j].Service
	})
	return statuses
}

package report

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/lmb-freiburg/irocs/internal/db"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

// maxCachedModels bounds the decoded transforms kept between requests.
const maxCachedModels = 64

// cachedModel is a decoded model kept between requests.
type cachedModel struct {
	t   *shell.Transform
	rec db.ModelRecord
}

// modelCache keeps a bounded set of decoded models. Every eviction bumps a
// generation; a load that started before an eviction is not cached, so a
// model deleted while it was being loaded cannot come back.
type modelCache struct {
	mu         sync.Mutex
	generation uint64
	models     *ristretto.Cache[string, cachedModel]
}

func newModelCache(size int64) (*modelCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, cachedModel]{
		NumCounters:        10 * size,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &modelCache{models: c}, nil
}

func (m *modelCache) get(id string) (cachedModel, bool) {
	return m.models.Get(id)
}

// begin returns the generation a load starts from.
func (m *modelCache) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// put caches a model loaded since generation gen. It reports whether the
// model was stored.
func (m *modelCache) put(gen uint64, rec *db.ModelRecord, t *shell.Transform) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return false
	}
	ok := m.models.Set(rec.ID, cachedModel{t: t, rec: *rec}, 1)
	// Make the entry visible to the next request.
	m.models.Wait()
	return ok
}

func (m *modelCache) evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.models.Del(id)
	m.models.Wait()
}

func (m *modelCache) close() {
	m.models.Close()
}

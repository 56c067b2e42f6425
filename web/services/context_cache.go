package services

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"

	"contract-analyzer/pipeline"
)

// ContextCache keeps recently used per-job retrieval indexes so concurrent
// chat messages against the same contract share one BM25 index instead of
// rebuilding it per message. Bounded LRU; eviction just means the next
// message rebuilds.
type ContextCache struct {
	cache *lru.Cache
}

func NewContextCache(size int) (*ContextCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ContextCache{cache: cache}, nil
}

func (c *ContextCache) Get(jobID uuid.UUID) (*pipeline.ChatContext, bool) {
	v, ok := c.cache.Get(jobID)
	if !ok {
		return nil, false
	}
	return v.(*pipeline.ChatContext), true
}

func (c *ContextCache) Put(jobID uuid.UUID, chatCtx *pipeline.ChatContext) {
	c.cache.Add(jobID, chatCtx)
}

func (c *ContextCache) Remove(jobID uuid.UUID) {
	c.cache.Remove(jobID)
}

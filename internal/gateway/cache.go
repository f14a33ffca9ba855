package gateway

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nambgit/archetype-data-audit/internal/domain/model"
)

// recordCache — LRU-кэш записей аудита с TTL для горячего пути выдачи.
// Потокобезопасен; источник истины — БД, кэш только снижает нагрузку
// на повторных запросах скачивания.
type recordCache struct {
	lru *expirable.LRU[string, *model.FileAuditRecord]
}

// newRecordCache создаёт кэш на size записей с временем жизни ttl.
func newRecordCache(size int, ttl time.Duration) *recordCache {
	return &recordCache{
		lru: expirable.NewLRU[string, *model.FileAuditRecord](size, nil, ttl),
	}
}

func (c *recordCache) get(id string) (*model.FileAuditRecord, bool) {
	return c.lru.Get(id)
}

func (c *recordCache) put(rec *model.FileAuditRecord) {
	c.lru.Add(rec.ID, rec)
}

func (c *recordCache) invalidate(id string) {
	c.lru.Remove(id)
}

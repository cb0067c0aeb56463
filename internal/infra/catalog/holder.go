package catalog

import (
	"sync/atomic"

	"capd/internal/domain"
)

// Holder publishes the current catalog to concurrent readers.
type Holder struct {
	current atomic.Pointer[Catalog]
}

func NewHolder(initial *Catalog) *Holder {
	h := &Holder{}
	if initial == nil {
		initial = NewCatalog(domain.RuleSet{})
	}
	h.current.Store(initial)
	return h
}

func (h *Holder) Load() *Catalog {
	return h.current.Load()
}

// Swap installs next and returns the catalog it replaced.
func (h *Holder) Swap(next *Catalog) *Catalog {
	if next == nil {
		next = NewCatalog(domain.RuleSet{})
	}
	return h.current.Swap(next)
}

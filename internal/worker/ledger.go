package worker

import (
	"slices"
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// ledger is the bookkeeping behind "uploading N of M" notifications.
type ledger struct {
	mx      sync.Mutex
	entries []model.MediaUploadEntry
}

func (l *ledger) Append(productID int64, localRef string) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.entries = append(l.entries, model.MediaUploadEntry{
		ProductID: productID,
		LocalRef:  localRef,
	})
}

// MarkDone flags the first unfinished entry of the pair as done.
func (l *ledger) MarkDone(productID int64, localRef string) bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	for i := range l.entries {
		e := &l.entries[i]
		if e.ProductID == productID && e.LocalRef == localRef && !e.Done {
			e.Done = true
			return true
		}
	}
	return false
}

func (l *ledger) RemoveProduct(productID int64) int {
	l.mx.Lock()
	defer l.mx.Unlock()
	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e model.MediaUploadEntry) bool {
		return e.ProductID == productID
	})
	return before - len(l.entries)
}

func (l *ledger) Clear() {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.entries = nil
}

func (l *ledger) Counts() (done, total int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	for _, e := range l.entries {
		if e.Done {
			done++
		}
	}
	return done, len(l.entries)
}

func (l *ledger) Snapshot() []model.MediaUploadEntry {
	l.mx.Lock()
	defer l.mx.Unlock()
	return slices.Clone(l.entries)
}

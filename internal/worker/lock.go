package worker

import "context"

// mediaLock is the single critical section shared by uploads and product
// updates. The repositories behind both keep one in-flight request slot, so
// at most one of these operations may run at any moment, worker wide.
type mediaLock struct {
	ch chan struct{}
}

func newMediaLock() *mediaLock {
	return &mediaLock{ch: make(chan struct{}, 1)}
}

// Lock blocks until the section is free or ctx is done.
func (l *mediaLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *mediaLock) Unlock() {
	<-l.ch
}

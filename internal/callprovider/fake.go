package callprovider

import (
	"context"
	"sync"
)

// Fake is an in-memory Client useful for tests.
type Fake struct {
	mu      sync.Mutex
	calls   map[string]CallInfo
	stopped []string

	// StopErr, when set, is returned by StopCall.
	StopErr error
}

func NewFake() *Fake {
	return &Fake{calls: map[string]CallInfo{}}
}

func (f *Fake) SetCall(info CallInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[info.CallID] = info
}

func (f *Fake) GetCall(ctx context.Context, callID string) (CallInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.calls[callID]
	if !ok {
		return CallInfo{}, ErrCallNotFound
	}
	return info, nil
}

func (f *Fake) StopCall(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StopErr != nil {
		return f.StopErr
	}
	f.stopped = append(f.stopped, callID)
	if info, ok := f.calls[callID]; ok {
		info.QueueStatus = StatusTerminated
		f.calls[callID] = info
	}
	return nil
}

// Stopped returns call ids passed to StopCall, in order.
func (f *Fake) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.stopped))
	copy(out, f.stopped)
	return out
}

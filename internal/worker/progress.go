package worker

import (
	"context"
	"time"

	"cthulhu/internal/gateway"
	"cthulhu/internal/observable"
)

// DefaultProgressInterval matches the run progress board's auto refresh.
const DefaultProgressInterval = 2 * time.Second

type ProgressSource interface {
	ListAllRunProgress(ctx context.Context) (gateway.ProgressList, error)
}

// ProgressBoard keeps the latest in-flight progress list. A failed poll leaves the last
// good list in place.
type ProgressBoard struct {
	src   ProgressSource
	value *observable.Value[gateway.ProgressList]
}

func NewProgressBoard(src ProgressSource) *ProgressBoard {
	return &ProgressBoard{src: src, value: observable.NewValue(gateway.ProgressList{})}
}

func (b *ProgressBoard) Refresh(ctx context.Context) error {
	list, err := b.src.ListAllRunProgress(ctx)
	if err != nil {
		return err
	}
	b.value.Set(list)
	return nil
}

func (b *ProgressBoard) Current() gateway.ProgressList { return b.value.Get() }

func (b *ProgressBoard) Subscribe() (<-chan gateway.ProgressList, func()) { return b.value.Subscribe() }

// Poller returns a poller refreshing the board every interval.
func (b *ProgressBoard) Poller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return NewPoller("run-progress", interval, b.Refresh)
}

// TaskLoader is satisfied by *store.Store.
type TaskLoader interface {
	LoadTasks(ctx context.Context, force bool)
}

// TaskRefresher force-reloads the task list every interval.
func TaskRefresher(l TaskLoader, interval time.Duration) *Poller {
	p := NewPoller("task-refresh", interval, func(ctx context.Context) error {
		l.LoadTasks(ctx, true)
		return nil
	})
	p.Immediate = false
	return p
}

package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Job fetches one resource into its slot
type Job interface {
	Name() string
	run(ctx context.Context, accept func() bool) error
}

type bound[T any] struct {
	res  Resource[T]
	slot *Slot[T]
	now  func() time.Time
}

func (b bound[T]) Name() string { return b.res.Name() }

func (b bound[T]) run(ctx context.Context, accept func() bool) error {
	items, err := b.res.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", b.res.Name(), err)
	}
	if accept == nil || accept() {
		b.slot.Set(items, b.now())
	}
	return nil
}

// Bind pairs a resource with the slot its results land in
func Bind[T any](res Resource[T], slot *Slot[T]) Job {
	return bound[T]{res: res, slot: slot, now: time.Now}
}

// Batch issues its jobs in parallel
type Batch struct {
	Jobs []Job
}

func NewBatch(jobs ...Job) *Batch {
	return &Batch{Jobs: jobs}
}

// Run fetches every job concurrently and waits for all of them. Each
// successful job is applied to its own slot as soon as it resolves, so a
// failing sibling does not roll anything back; the joined error reports
// every failure.
func (b *Batch) Run(ctx context.Context) error {
	return b.run(ctx, nil)
}

func (b *Batch) run(ctx context.Context, accept func() bool) error {
	if len(b.Jobs) == 0 {
		return nil
	}

	errs := make([]error, len(b.Jobs))
	var wg sync.WaitGroup
	for i, job := range b.Jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			errs[i] = job.run(ctx, accept)
		}(i, job)
	}
	wg.Wait()

	return errors.Join(errs...)
}

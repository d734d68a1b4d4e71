package harness

import (
	"context"

	"github.com/Layouwen/vuex-study/internal/store"
)

type countingObserver struct {
	n int
}

func (c *countingObserver) OnEvent(ctx context.Context, e store.Event) {
	c.n++
}

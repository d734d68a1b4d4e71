package store

import "github.com/Layouwen/vuex-study/internal/loop"

func newLoopForTest() *loop.Loop {
	return loop.New(loop.WithLogger(quietLogger()))
}

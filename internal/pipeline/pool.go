package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"streamtrans/pkg/contract"
)

// pool 是有界工作池：同时运行的任务数不超过 size。
// 名额不足时 Go 阻塞，向提交方施加背压；任务一经启动必定运行到结束。
type pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(size))}
}

// handle 是单个任务的结果句柄。
type handle struct {
	done chan struct{}
	res  contract.TranslationResult
	err  error
}

// Done 非阻塞地报告任务是否已结束。
func (h *handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait 阻塞直到任务结束并返回其结果。
func (h *handle) Wait() (contract.TranslationResult, error) {
	<-h.done
	return h.res, h.err
}

// Go 占用一个名额后异步执行 fn。仅在获取名额期间 ctx 结束时返回错误。
func (p *pool) Go(ctx context.Context, fn func() (contract.TranslationResult, error)) (*handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	h := &handle{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("translator panic: %v", r)
			}
		}()
		h.res, h.err = fn()
	}()
	return h, nil
}

// Wait 等待所有已启动的任务结束。
func (p *pool) Wait() { p.wg.Wait() }

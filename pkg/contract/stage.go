package contract

import "context"

// 三个阶段的推送契约。每个阶段只持有下游的引用：
//   - Push/Submit/Consume 逐项推送；
//   - Close 为正常结束：排空并逐级关闭下游；
//   - Abort 为异常结束：停止接收、等待在途工作、冲刷已交付内容，不写结尾符。
// Close 与 Abort 互斥，且各自至多调用一次。

// FragmentConsumer 接收 Source 产出的片段（Batcher 实现）。
type FragmentConsumer interface {
	Push(ctx context.Context, f Fragment) error
	Close(ctx context.Context) error
	Abort(ctx context.Context) error
}

// BatchConsumer 接收 Batcher 产出的批（Scheduler 实现）。
// Submit 在工作池饱和时阻塞，以此向上游施加背压。
type BatchConsumer interface {
	Submit(ctx context.Context, b Batch) error
	Close(ctx context.Context) error
	Abort(ctx context.Context) error
}

// ResultConsumer 按提交顺序接收翻译结果（Sink 实现）。
type ResultConsumer interface {
	Consume(ctx context.Context, r TranslationResult) error
	Close(ctx context.Context) error
	Abort(ctx context.Context) error
}

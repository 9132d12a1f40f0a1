package contract

// UpstreamError 承载翻译服务 HTTP 上游错误的诊断信息（状态码与简短消息），
// 调度层据此在日志中记录结构化字段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

package rate

import "streamtrans/pkg/contract"

// MakeEstimator 返回近似 token 估算器：tokens ≈ ceil(utf8 字节数/bytesPerToken)。
// bytesPerToken<=0 时取 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		return (len(s) + bpt - 1) / bpt
	}
}

// OverheadTokens 返回提示词构造器声明的固定开销（pb 为 nil 时为 0）。
func OverheadTokens(pb contract.PromptBuilder, est contract.TokenEstimator) int {
	if pb == nil {
		return 0
	}
	return pb.EstimateOverheadTokens(est)
}

package types

// Decision 准入判定结果
// 放在公共类型包，admission 与 api 共用，避免循环依赖
type Decision struct {
	Allowed      bool   // 是否放行
	RetryAfterMs int64  // 建议重试时间(毫秒)，仅在拒绝时有值
	Reason       string // 判定原因
	Key          string // admission record key, empty when no rule applied
	Err          error  // 错误信息(如有)
}

package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如引擎拒绝文档但流程可继续）
// - 5xxx：系统错误（需要中断流程）
const (
	OK            = 0
	EngineRefused = 4102
	SystemError   = 5000
)

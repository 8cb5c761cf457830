/**
 * DDI反馈文档模型
 * @author: sun977
 * @date: 2026.07.20
 * @description: hawkBit DDI协议的状态反馈文档，遵循"好品味"原则
 * @func: 定义反馈文档结构与各生命周期节点的构造函数
 */
package client

import "time"

// ==================== 反馈文档 ====================

// DDITimeFormat DDI反馈文档使用的UTC时间戳格式
const DDITimeFormat = "20060102T150405"

// execution取值
const (
	ExecutionProceeding = "proceeding" // 处理中
	ExecutionClosed     = "closed"     // 已结束
)

// result.finished取值
const (
	FinishedNone    = "none"    // 未出结果
	FinishedSuccess = "success" // 成功
	FinishedFailure = "failure" // 失败
)

// FeedbackResult 反馈结果
type FeedbackResult struct {
	Finished string `json:"finished"` // none/success/failure
}

// FeedbackStatus 反馈状态
type FeedbackStatus struct {
	Result    FeedbackResult `json:"result"`            // 执行结果
	Execution string         `json:"execution"`         // proceeding/closed
	Details   []string       `json:"details,omitempty"` // 详情，最多一条
}

// Feedback DDI状态反馈文档
// 每次上报时临时构造，时间戳取构造时刻的UTC时间
type Feedback struct {
	ID     string            `json:"id,omitempty"`   // 动作ID，identify时为空
	Time   string            `json:"time"`           // UTC时间戳 YYYYMMDDTHHMMSS
	Status FeedbackStatus    `json:"status"`         // 状态
	Data   map[string]string `json:"data,omitempty"` // 设备属性，仅identify时携带
}

// NewFeedback 构造反馈文档
// detail为空时不携带details字段
func NewFeedback(id, detail, finished, execution string) *Feedback {
	fb := &Feedback{
		ID:   id,
		Time: time.Now().UTC().Format(DDITimeFormat),
		Status: FeedbackStatus{
			Result:    FeedbackResult{Finished: finished},
			Execution: execution,
		},
	}
	if detail != "" {
		fb.Status.Details = []string{detail}
	}
	return fb
}

// NewProgressFeedback 构造进度反馈（execution=proceeding, finished=none）
func NewProgressFeedback(id, detail string) *Feedback {
	return NewFeedback(id, detail, FinishedNone, ExecutionProceeding)
}

// NewIdentifyFeedback 构造identify反馈（无ID，closed/success，携带设备属性）
func NewIdentifyFeedback(data map[string]string) *Feedback {
	fb := NewFeedback("", "", FinishedSuccess, ExecutionClosed)
	fb.Data = data
	return fb
}

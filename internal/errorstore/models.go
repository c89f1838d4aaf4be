package errorstore

import "time"

// 注意：
// - 表结构固定为 errors(id, page, error, traceback, timestamp, status, type)
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// 捕获记录的类别：显式上报与未捕获异常。
const (
	TypeStreamlitError = "streamlit_error"
	TypeException      = "exception"
)

// StatusCritical 捕获到的页面错误一律记为 critical 级别。
const StatusCritical = "critical"

// PageUnknown 无页面上下文时的归一化页面名。
const PageUnknown = "unknown_page"

// TimeLayout 定宽 ISO-8601 时间戳格式。纳秒位补零，
// 保证 timestamp 列的字符串排序与时间排序一致。
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp 以 UTC 定宽格式生成时间戳字符串。
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ErrorRecord 映射 errors 表。记录创建后不再修改，仅能整页或整库清除。
type ErrorRecord struct {
	// 主键，由存储层单调递增分配
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// 错误所属页面，空值归一化为 unknown_page
	Page string `gorm:"column:page;type:text;not null;index" json:"page"`
	// 错误消息文本
	Error string `gorm:"column:error;type:text;not null" json:"error"`
	// 堆栈文本；结构化堆栈在写入前序列化为 JSON 字符串
	Traceback string `gorm:"column:traceback;type:text" json:"traceback"`
	// ISO-8601 时间戳字符串
	Timestamp string `gorm:"column:timestamp;type:text;not null;index" json:"timestamp"`
	// 严重级别，捕获路径固定为 critical
	Status string `gorm:"column:status;type:text;not null" json:"status"`
	// streamlit_error | exception
	Type string `gorm:"column:type;type:text;not null" json:"type"`
}

func (ErrorRecord) TableName() string { return "errors" }

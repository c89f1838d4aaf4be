package health

import (
	"github.com/saradindusengupta/streamlit-healthcheck/internal/errorstore"
)

// Status 健康状态
type Status string

const (
	StatusHealthy  Status = "healthy"  // 健康
	StatusWarning  Status = "warning"  // 告警（超出 warning 阈值但仍可服务）
	StatusCritical Status = "critical" // 严重（超出 critical 阈值或探测失败）
	StatusUnknown  Status = "unknown"  // 未知（未检查或检查无法实施）
)

// CheckResult 单项检查结果。按检查类别填充对应字段，未用字段不序列化。
// 每轮整体覆盖上一轮结果，内存中不保留历史。
type CheckResult struct {
	Status Status `json:"status"`

	// 系统资源检查
	UsagePercent float64 `json:"usage_percent,omitempty"`
	TotalGB      float64 `json:"total_gb,omitempty"`
	AvailableGB  float64 `json:"available_gb,omitempty"`
	FreeGB       float64 `json:"free_gb,omitempty"`

	// 依赖与服务器探测
	Type           string  `json:"type,omitempty"` // api | database
	URL            string  `json:"url,omitempty"`
	DBType         string  `json:"db_type,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms,omitempty"`
	LatencyMS      float64 `json:"latency_ms,omitempty"`
	StatusCode     int     `json:"status_code,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// 自定义检查附带的额外数据
	Details map[string]interface{} `json:"details,omitempty"`
}

// PageHealth 页面错误健康度，每轮从 errorstore 重新推导，不独立修改。
type PageHealth struct {
	Status     Status                              `json:"status"`
	ErrorCount int                                 `json:"error_count"`
	Errors     map[string][]errorstore.ErrorRecord `json:"errors"`
	Details    string                              `json:"details"`
}

// HealthSnapshot 一轮检查的聚合结果。由 Runner 独占持有，
// 对外只交出深拷贝副本。
type HealthSnapshot struct {
	LastUpdated   string                 `json:"last_updated"`
	InstanceID    string                 `json:"instance_id"`
	Server        CheckResult            `json:"streamlit_server"`
	System        map[string]CheckResult `json:"system"`
	Dependencies  map[string]CheckResult `json:"dependencies"`
	CustomChecks  map[string]CheckResult `json:"custom_checks"`
	Pages         PageHealth             `json:"streamlit_pages"`
	OverallStatus Status                 `json:"overall_status"`
}

// Clone 深拷贝快照，读方拿不到内部状态的活引用。
func (s HealthSnapshot) Clone() HealthSnapshot {
	out := s
	out.System = cloneResults(s.System)
	out.Dependencies = cloneResults(s.Dependencies)
	out.CustomChecks = cloneResults(s.CustomChecks)

	out.Pages.Errors = make(map[string][]errorstore.ErrorRecord, len(s.Pages.Errors))
	for page, recs := range s.Pages.Errors {
		cp := make([]errorstore.ErrorRecord, len(recs))
		copy(cp, recs)
		out.Pages.Errors[page] = cp
	}
	return out
}

func cloneResults(in map[string]CheckResult) map[string]CheckResult {
	out := make(map[string]CheckResult, len(in))
	for k, v := range in {
		if v.Details != nil {
			details := make(map[string]interface{}, len(v.Details))
			for dk, dv := range v.Details {
				details[dk] = dv
			}
			v.Details = details
		}
		out[k] = v
	}
	return out
}

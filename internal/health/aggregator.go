package health

// Aggregate 从各组件状态计算总体状态，纯函数。
// 优先级：critical > warning > (unknown，且无 healthy) > healthy > unknown。
// unknown 与 healthy 的不对称是刻意的：全 unknown（比如没有配置任何检查）
// 报 unknown，而 unknown 混 healthy 报 healthy——只要有组件确认健康，
// unknown 组件不阻塞整体结论。
func Aggregate(statuses []Status) Status {
	hasCritical := false
	hasWarning := false
	hasHealthy := false
	hasUnknown := false

	for _, s := range statuses {
		switch s {
		case StatusCritical:
			hasCritical = true
		case StatusWarning:
			hasWarning = true
		case StatusHealthy:
			hasHealthy = true
		case StatusUnknown:
			hasUnknown = true
		}
	}

	switch {
	case hasCritical:
		return StatusCritical
	case hasWarning:
		return StatusWarning
	case hasUnknown && !hasHealthy:
		return StatusUnknown
	case hasHealthy:
		return StatusHealthy
	default:
		return StatusUnknown
	}
}

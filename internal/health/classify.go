package health

// Classify 按阈值归类使用率。
// critical 先判：恰好落在 critical 阈值上时判 critical 而非 warning。
func Classify(value, warning, critical float64) Status {
	if value >= critical {
		return StatusCritical
	}
	if value >= warning {
		return StatusWarning
	}
	return StatusHealthy
}

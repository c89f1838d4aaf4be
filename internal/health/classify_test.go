package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassify 阈值归类：critical 优先，边界值归入更严重的一档
func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		warning  float64
		critical float64
		want     Status
	}{
		{"低于warning为healthy", 50, 70, 90, StatusHealthy},
		{"恰好warning为warning", 70, 70, 90, StatusWarning},
		{"介于两档之间为warning", 80, 70, 90, StatusWarning},
		{"恰好critical为critical", 90, 70, 90, StatusCritical},
		{"超过critical为critical", 99.9, 70, 90, StatusCritical},
		{"零使用率为healthy", 0, 70, 90, StatusHealthy},
		{"满载为critical", 100, 70, 90, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.value, tt.warning, tt.critical))
		})
	}
}

// TestClassifyEqualThresholds warning 与 critical 相等时整段归 critical
func TestClassifyEqualThresholds(t *testing.T) {
	assert.Equal(t, StatusCritical, Classify(90, 90, 90))
	assert.Equal(t, StatusHealthy, Classify(89.9, 90, 90))
}

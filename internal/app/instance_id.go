package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateInstanceID 生成服务实例ID
// 优先使用环境变量 HEALTHCHECK_INSTANCE_ID，否则生成UUID
func GenerateInstanceID() string {
	if id := os.Getenv("HEALTHCHECK_INSTANCE_ID"); id != "" {
		return id
	}

	// 生成格式：healthcheck-{hostname}-{uuid}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("healthcheck-%s-%s", hostname, shortUUID)
}

package client

import (
	"fmt"

	"neoupdate/internal/config"
)

// BuildAPIURL 构造DDI接口地址
// 形如 <scheme>://<host>/<tenant>/controller/v1/<controller_id>[/<path>]
// format为空时返回不带末尾斜杠的基础地址
func BuildAPIURL(cfg *config.HawkbitConfig, format string, args ...interface{}) string {
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}

	base := fmt.Sprintf("%s://%s/%s/controller/v1/%s",
		scheme, cfg.Server, cfg.TenantID, cfg.ControllerID)
	if format == "" {
		return base
	}
	return base + "/" + fmt.Sprintf(format, args...)
}

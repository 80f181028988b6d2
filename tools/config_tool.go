package tools

import (
	"context"

	"github.com/BaSui01/nifimcp/config"
)

// ConfigCheckTool 只读工具 check_configuration：报告当前配置的错误与警告
func ConfigCheckTool(cfg *config.Config) ToolSpec {
	return define("check_configuration", "Validate the server configuration and list errors and warnings. Credentials are never included.", readEffect,
		func(_ context.Context, _ noArgs) (any, error) {
			return cfg.Check(), nil
		})
}

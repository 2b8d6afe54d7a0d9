// Package autoload initializes the global logger from LOGGER_* environment
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/tanpawarit/leavedesk/pkg/config"
	logx "github.com/tanpawarit/leavedesk/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOGGER")
	logx.Init(*cfg)
}

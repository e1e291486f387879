// Package autoload initializes the global logger from the LOGGER_* environment
// on import. Blank-import it from main.
package autoload

import (
	configx "github.com/cobsystems/careflow/pkg/config"
	logx "github.com/cobsystems/careflow/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOGGER"))
}

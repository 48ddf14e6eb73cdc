package scripting

import (
	"sync"

	"github.com/go-kratos/kratos/v2/log"
)

var configuredLevel = sync.OnceValue(func() string {
	cfg, err := LoadConfig()
	if err != nil {
		return ""
	}
	return cfg.LogLevel
})

// defaultLogger is the kratos global logger filtered by SCRIPTING_LOG_LEVEL.
func defaultLogger() log.Logger {
	logger := log.GetLogger()
	if level := configuredLevel(); level != "" {
		return log.NewFilter(logger, log.FilterLevel(log.ParseLevel(level)))
	}
	return logger
}

func newHelper(logger log.Logger, module string) *log.Helper {
	if logger == nil {
		logger = defaultLogger()
	}
	return log.NewHelper(log.With(logger, "module", module))
}

package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the process-wide logger. The first call wins; subsequent calls
// return the existing instance. Pass env "production" for JSON output.
func Init(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		instance, err = build(env)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// L returns the process logger, falling back to a development logger when
// Init has not run (tests, ad-hoc tools).
func L() *zap.Logger {
	if instance == nil {
		l, err := Init("development")
		if err != nil {
			return zap.NewNop()
		}
		return l
	}
	return instance
}

// Named returns a child logger tagged with a component name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered log entries. Call via defer from main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

func build(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Package logsvc provides the app's core.Logger implementation: structured
// output through zap, with warnings and errors forwarded to Rollbar when a
// token is configured.
package logsvc

import (
	"fmt"

	"github.com/rollbar/rollbar-go"
	rollbarerrs "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/user"
)

type ZapLogger struct {
	sugar          *zap.SugaredLogger
	rollbarEnabled bool
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(conf *core.Config) *ZapLogger {
	var zconf zap.Config
	if conf.Debug {
		zconf = zap.NewDevelopmentConfig()
		zconf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zconf = zap.NewProductionConfig()
	}
	zconf.OutputPaths = []string{"stdout"}

	logger, err := zconf.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic("logsvc: building zap logger: " + err.Error())
	}

	enabled := conf.RollbarToken != "" && !conf.Debug && !conf.TestMode
	if enabled {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(rollbarerrs.StackTracer)
	}
	return &ZapLogger{sugar: logger.Sugar(), rollbarEnabled: enabled}
}

// track splits key-value args into a Rollbar payload: errors are reported
// with their stack, a user.User arg sets the person, the rest become extras.
// expected args fmt: alternating key-value pairs
func (l *ZapLogger) track(level func(...interface{}), msg string, args []interface{}) {
	if !l.rollbarEnabled {
		return
	}
	var (
		reportedErr error
		usrSet      bool
	)
	extras := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		switch val := args[i+1].(type) {
		case error:
			if reportedErr == nil {
				reportedErr = val
				continue
			}
			extras[key] = val.Error()
		case user.User:
			if !usrSet {
				rollbar.SetPerson(fmt.Sprint(val.ID), val.Username, val.Email)
				usrSet = true
			}
		default:
			extras[key] = val
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}

	payload := []interface{}{msg, extras}
	if reportedErr != nil {
		payload = append(payload, reportedErr)
	}
	level(payload...)
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	l.sugar.Debugw(msg, args...)
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.sugar.Infow(msg, args...)
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.track(rollbar.Warning, msg, args)
	l.sugar.Warnw(msg, args...)
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.track(rollbar.Error, msg, args)
	l.sugar.Errorw(msg, args...)
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.track(rollbar.Critical, msg, args)
	rollbar.Wait()
	l.sugar.Fatalw(msg, args...)
}

// Sync flushes buffered log entries and pending Rollbar items; call on
// shutdown.
func (l *ZapLogger) Sync() error {
	if l.rollbarEnabled {
		rollbar.Wait()
	}
	return l.sugar.Sync()
}

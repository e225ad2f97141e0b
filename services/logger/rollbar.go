package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/user"
)

// RollbarLogger reports to rollbar and prints through zap.
type RollbarLogger struct {
	zl *zap.SugaredLogger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{zl: zl.Sugar()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Sync flushes both sinks.
func (l *RollbarLogger) Sync() {
	rollbar.Wait()
	_ = l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, user.User
// prepare returns the rollbar args and the zap key/values.
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, []interface{}) {
	var usrSet bool
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	kvs := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if !usrSet { // only set one User
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				kvs = append(kvs, "user_id", a.ID)
				usrSet = true
			}
		case error:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "error", a.Error())
		case map[string]interface{}:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "extras", a)
		default:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "arg", a)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, kvs
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.zl.Debugw(msg, kvs...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.zl.Infow(msg, kvs...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.zl.Warnw(msg, kvs...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.zl.Errorw(msg, kvs...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.zl.Fatalw(msg, kvs...)
}

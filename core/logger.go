package core

// Logger is implemented by services/logger.
// expected args fmt: error | map[string]interface{} | user.User (the user in context)
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

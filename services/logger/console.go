package logsvc

import (
	"log"
	"os"

	"github.com/trezcool/curricula/core"
)

// ConsoleLogger prints to a standard logger. Debug messages are dropped unless debug is on.
type ConsoleLogger struct {
	std   *log.Logger
	debug bool
}

var _ core.Logger = (*ConsoleLogger)(nil)

func NewConsoleLogger(std *log.Logger, debug bool) *ConsoleLogger {
	return &ConsoleLogger{std: std, debug: debug}
}

// New returns a RollbarLogger when a Rollbar token is configured, a ConsoleLogger otherwise.
func New(conf *core.Config) core.Logger {
	std := log.New(os.Stdout, conf.AppName+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	if conf.RollbarToken == "" || conf.TestMode {
		return NewConsoleLogger(std, conf.Debug)
	}
	return NewRollbarLogger(std, conf)
}

func (l ConsoleLogger) print(level, msg string, args []interface{}) {
	l.std.Println(level + " " + msg)
	for _, arg := range args {
		if actor, ok := arg.(core.Actor); ok {
			l.std.Printf("  actor: %s (%s)\n", actor.Username, actor.ID)
			continue
		}
		l.std.Printf("  %+v\n", arg)
	}
}

func (l ConsoleLogger) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l ConsoleLogger) Info(msg string, args ...interface{}) {
	l.print("INFO", msg, args)
}

func (l ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.print("WARN", msg, args)
}

func (l ConsoleLogger) Error(msg string, args ...interface{}) {
	l.print("ERROR", msg, args)
}

func (l ConsoleLogger) Fatal(msg string, args ...interface{}) {
	l.print("FATAL", msg, args)
	l.std.Fatal(msg)
}

package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

type Fields = logrus.Fields

type Options struct {
	Level string
	File  string
	Env   string
}

// NewLogger configures the process-wide logger. Only the first call applies
// its options.
func NewLogger(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()

		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        opts.Env == "test",
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			FieldsOrder:     []string{"caller"},
		})

		writers := []io.Writer{os.Stderr}
		if opts.Env != "test" && opts.File != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				LocalTime:  true,
				Compress:   true,
				MaxSize:    100,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
	})

	return logger
}

func get() *logrus.Logger {
	return NewLogger(Options{Level: "info", Env: os.Getenv("APP_ENV")})
}

// entry tags the line with the caller of the exported helper.
func entry(fields Fields) *logrus.Entry {
	e := get().WithFields(fields)
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return e
	}
	funcName := "?"
	if fn := runtime.FuncForPC(pc); fn != nil {
		s := strings.Split(fn.Name(), ".")
		funcName = s[len(s)-1]
	}
	return e.WithField("caller", fmt.Sprintf("%s:%d %s()", path.Base(file), line, funcName))
}

func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}

func Fatal(fields Fields, msg string) {
	entry(fields).Fatal(msg)
}

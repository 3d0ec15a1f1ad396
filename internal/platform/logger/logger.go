package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/ohmynofan/mapp-task-bot/internal/platform/ui"
	"github.com/ohmynofan/mapp-task-bot/pkg/utils"
)

var (
	fileLogger *log.Logger
	once       sync.Once
	logFile    *os.File
)

func Init(path string) error {
	var err error
	once.Do(func() {
		os.Remove(path)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		fileLogger = log.New(logFile, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	})
	return err
}

func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

type ClassLogger struct {
	class string
}

func NewLogger(v interface{}) *ClassLogger {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return &ClassLogger{class: t.Name()}
}

func NewNamed(name string) *ClassLogger {
	return &ClassLogger{class: name}
}

// Log writes msg to the log file and shows it as the board status line.
func (l *ClassLogger) Log(msg string) {
	l.write(msg)
	ui.UpdateStatus(shortenForDisplay(msg))
}

func (l *ClassLogger) JustLog(msg string) {
	l.write(msg)
}

func (l *ClassLogger) LogObject(msg string, obj interface{}) {
	if fileLogger != nil {
		formattedString, err := utils.FormatObject(obj)
		if err != nil {
			l.JustLog(fmt.Sprintf("Error formatting object: %v", err))
			return
		}
		l.JustLog(fmt.Sprintf("%s : \n%v", msg, formattedString))
	}
}

func (l *ClassLogger) write(msg string) {
	if l == nil || fileLogger == nil {
		return
	}
	fileLogger.Printf("[%s][%s] %s", l.class, callerFunc(3), msg)
}

func callerFunc(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	parts := strings.Split(fn.Name(), ".")
	return parts[len(parts)-1]
}

func shortenForDisplay(msg string) string {
	const maxLen = 140
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen-1]) + "…"
}

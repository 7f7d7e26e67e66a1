// Package version хранит сведения о сборке, заполняемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает коммит сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// Fields возвращает сведения о сборке для структурированного лога.
func Fields() map[string]any {
	return map[string]any{"version": version, "commit": commit, "build_date": date}
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../mocks/mocks.go -package=mocks github.com/cspack/cspack/pkg/interfaces Validator,StyleCompiler,Minifier,BuildNotifier

// Validator checks a component folder. Diagnostics go to the console as a
// side effect; the boolean is the verdict. A non-nil error means the
// validator could not run at all.
type Validator interface {
	Validate(ctx context.Context, folder string) (bool, error)
}

// StyleCompiler compiles a generated style entry file
type StyleCompiler interface {
	Compile(ctx context.Context, entryPath string) error
}

// Minifier minifies a script bundle
type Minifier interface {
	Minify(src []byte) ([]byte, error)
}

// BuildNotifier handles desktop notifications
type BuildNotifier interface {
	NotifyBuildSuccess(name string, duration time.Duration)
	NotifyBuildFailure(name string, err error)
	NotifyValidation(folder string, passed bool)
}

// FileChangeCallback is called with one settled batch of changed paths
type FileChangeCallback func(paths []string)

// Watcher abstracts recursive file watching
type Watcher interface {
	WatchProject(root string, callback FileChangeCallback) error
	Close() error
}

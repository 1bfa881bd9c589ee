// Package notifier provides desktop notifications for pipeline results
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/gen2brain/beeep"
)

// SendFunc delivers one notification
type SendFunc func(title, message string) error

// BuildNotifier handles build and validation notifications
type BuildNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger
	send         SendFunc
	beep         func() error

	mu          sync.Mutex
	lastVerdict map[string]bool
}

// New creates a new build notifier
func New(cfg types.NotificationConfig, log logger.Logger) *BuildNotifier {
	return &BuildNotifier{
		enabled:      cfg.Enabled,
		successSound: cfg.SuccessSound,
		failureSound: cfg.FailureSound,
		logger:       log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
		lastVerdict: make(map[string]bool),
	}
}

// WithSender replaces the notification transport
func (n *BuildNotifier) WithSender(send SendFunc) *BuildNotifier {
	n.send = send
	n.beep = func() error { return nil }
	return n
}

// NotifyBuildSuccess notifies that a pipeline succeeded
func (n *BuildNotifier) NotifyBuildSuccess(name string, duration time.Duration) {
	if !n.enabled {
		return
	}
	n.sendNotification("Build Succeeded", fmt.Sprintf("%s packaged in %s", name, formatDuration(duration)), n.successSound)
}

// NotifyBuildFailure notifies that a pipeline failed
func (n *BuildNotifier) NotifyBuildFailure(name string, err error) {
	if !n.enabled {
		return
	}
	n.sendNotification("Build Failed", fmt.Sprintf("%s: %v", name, err), n.failureSound)
}

// NotifyValidation notifies when the verdict for folder differs from the
// previous one. The first verdict is only announced when it is a failure.
func (n *BuildNotifier) NotifyValidation(folder string, passed bool) {
	if !n.enabled {
		return
	}

	n.mu.Lock()
	prev, seen := n.lastVerdict[folder]
	n.lastVerdict[folder] = passed
	n.mu.Unlock()

	if seen && prev == passed {
		return
	}
	if !seen && passed {
		return
	}

	if passed {
		n.sendNotification("Validation Passed", fmt.Sprintf("%s is valid again", folder), n.successSound)
	} else {
		n.sendNotification("Validation Failed", fmt.Sprintf("%s has validation errors", folder), n.failureSound)
	}
}

func (n *BuildNotifier) sendNotification(title, message, soundName string) {
	if err := n.send("cspack: "+title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
	}

	if soundName != "" {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

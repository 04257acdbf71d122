package workflow

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/notifications"
	"github.com/casaora/automation_backend/store"
)

// Engine bundles the dependencies every lifecycle job needs. The scheduler
// owns one Engine and hands it to each job run.
type Engine struct {
	Store        store.TableAPI
	Logger       *logrus.Logger
	Notifier     *notifications.Center
	Triggers     TriggerDispatcher
	AppPublicURL string
	Clock        func() time.Time
}

func NewEngine(s store.TableAPI, logger *logrus.Logger, notifier *notifications.Center, triggers TriggerDispatcher, appPublicURL string) *Engine {
	return &Engine{
		Store:        s,
		Logger:       logger,
		Notifier:     notifier,
		Triggers:     triggers,
		AppPublicURL: appPublicURL,
		Clock:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

// today returns the engine's current calendar date in UTC.
func (e *Engine) today() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

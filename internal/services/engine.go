package services

import (
	"fmt"
	"time"

	"github.com/yukikurage/project-allocation-api/internal/config"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/metrics"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"github.com/yukikurage/project-allocation-api/internal/utils"
	"go.uber.org/zap"
)

// Dependencies are shared by the group, invitation, project and allocation services.
type Dependencies struct {
	Store   repository.Store
	Locks   *utils.KeyedLocker
	Events  events.Emitter
	Rules   config.Rules
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time

	// AllowPreemptiveOverride lets admins force-allocate a pending cascade.
	AllowPreemptiveOverride bool
}

type engine struct {
	Dependencies
}

func newEngine(deps Dependencies) engine {
	if deps.Locks == nil {
		deps.Locks = utils.NewKeyedLocker()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return engine{Dependencies: deps}
}

func (e *engine) emit(event events.Event) {
	if e.Events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.Now()
	}
	e.Events.Emit(event)
}

func groupKey(groupID uint64) string {
	return fmt.Sprintf("group:%d", groupID)
}

func projectKey(projectID uint64) string {
	return fmt.Sprintf("project:%d", projectID)
}

func studentKey(semester int, studentID uint64) string {
	return fmt.Sprintf("student:%d:%d", semester, studentID)
}

package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
	"github.com/soulprintlabs/soulprint-backend/internal/types"
)

// errorTruncateLen bounds the error column so one giant provider response
// cannot bloat the jobs table.
const errorTruncateLen = 500

/*
The execution contract between the job system and all pipeline code.
runtime.Context is a capability-scoped execution handle for a single job run.
It wraps:
	- The database handle,
	- The mutable synthesis_job row,
	- The notification side-effects,
	- And the only sanctioned ways to report progress or terminate execution.
Pipelines never touch synthesis_job directly. They go through this object.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.SynthesisJob
	Repo    repos.SynthesisJobRepo
	Notify  services.JobNotifier
	payload map[string]any
}

// terminalGuard prevents a reclaimed duplicate of this job from overwriting a
// run that already reached a terminal state.
var terminalGuard = []string{types.JobStatusComplete, types.JobStatusFailed}

/*
NewContext constructs a runtime.Context for a claimed job execution.
It eagerly decodes the job payload JSON so handlers can access inputs via
Payload()/PayloadUUID(). Payload decode failure is non-fatal here; handlers
validate the fields they require.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *types.SynthesisJob, repo repos.SynthesisJobRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload returns the decoded payload map for this job execution. It never
// returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString reads a payload field by key as a string, returning "" when
// missing or not a string.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// PayloadUUID reads a payload field by key and attempts to parse it as a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

/*
Progress publishes a non-terminal status update for this job run.
It persists stage/progress plus a heartbeat timestamp into synthesis_job,
guarded so terminal jobs are not overwritten, mirrors the fields onto the
in-memory row, and emits a notifier event.

Stage names are the pipeline's resume checkpoints: a crashed run restarts from
the beginning, but the persisted stage tells operators and clients where the
previous attempt got to.
*/
func (c *Context) Progress(stage string, pct int) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalGuard, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct)
	}
}

/*
Fail marks this job run as terminally failed and records a truncated error
message. It clears locked_at so the row is visibly no longer owned, sets
last_error_at, and emits a 'failed' notification. Guarded the same way as
Progress; if the guard rejects the write no notification is emitted.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > errorTruncateLen {
		msg = msg[:errorTruncateLen]
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalGuard, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"completed_at":  now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.CompletedAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

/*
Succeed marks this job run as terminally complete with progress 100, persists
a JSON result payload, clears error/locked_at, and emits a 'done'
notification. Guarded the same way as Progress.
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, nil, c.Job.ID, terminalGuard, map[string]interface{}{
			"status":       types.JobStatusComplete,
			"stage":        finalStage,
			"progress":     100,
			"error":        "",
			"result":       res,
			"completed_at": now,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusComplete
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.CompletedAt = &now
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}

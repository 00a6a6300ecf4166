package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/ledger"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/notify"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/policy"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/repo"
)

const (
	publicIDMin = 100000
	publicIDMax = 999999

	statusCommentMin = 10
	statusCommentMax = 2000
	commentMin       = 5
	commentMax       = 5000
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History ledger.Ledger
	Sink    notify.Sink
	Config  *config.Config
	Log     zerolog.Logger
	Now     func() time.Time
	// PublicID draws a candidate public id; retried on collision.
	PublicID func() int
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	return Engine{
		DB:       conn,
		Repo:     r,
		History:  ledger.Ledger{Repo: r, Now: time.Now},
		Sink:     notify.Nop{},
		Config:   cfg,
		Log:      zerolog.Nop(),
		Now:      time.Now,
		PublicID: randomPublicID,
	}
}

func randomPublicID() int {
	return publicIDMin + rand.IntN(publicIDMax-publicIDMin+1)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return domain.FormatTime(e.now())
}

func (e Engine) ledger() ledger.Ledger {
	l := e.History
	l.Repo = e.Repo
	l.Now = e.now
	return l
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// requireActive rejects inactive or malformed actors before anything else.
func requireActive(actor domain.Actor) error {
	if actor.ID == "" {
		return forbidden("actor required")
	}
	if !actor.Active {
		return forbidden("actor %s is inactive", actor.ID)
	}
	if !actor.Role.Valid() {
		return forbidden("actor %s has unknown role %q", actor.ID, actor.Role)
	}
	return nil
}

// subject loads the category grants that widen an executor's visible set.
func (e Engine) subject(ctx context.Context, q repo.Querier, actor domain.Actor) (policy.Subject, error) {
	s := policy.Subject{Actor: actor}
	if actor.Role != domain.RoleExecutor {
		return s, nil
	}
	cats, err := e.Repo.CategoryIDsFor(ctx, q, actor.ID)
	if err != nil {
		return s, fmt.Errorf("load category access: %w", err)
	}
	s.Categories = cats
	return s, nil
}

// loadVisibleCase fetches a case and applies the single-case visibility check.
func (e Engine) loadVisibleCase(ctx context.Context, q repo.Querier, s policy.Subject, caseID string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, q, caseID)
	if err != nil {
		return domain.Case{}, lookupErr(err, "case", caseID)
	}
	if !policy.Visible(s, c) {
		return domain.Case{}, forbidden("case %s is outside the visible set of %s", caseID, s.ID)
	}
	return c, nil
}

// publish hands events to the sink after commit. Failures are logged only.
func (e Engine) publish(ctx context.Context, events ...notify.Event) {
	if e.Sink == nil {
		return
	}
	for _, evt := range events {
		if evt.ID == "" {
			evt.ID = uuid.NewString()
		}
		if evt.OccurredAt == "" {
			evt.OccurredAt = e.nowString()
		}
		if err := e.Sink.Enqueue(ctx, evt); err != nil {
			e.Log.Warn().Err(err).
				Str("type", string(evt.Type)).
				Str("case_id", evt.CaseID).
				Msg("notification enqueue failed")
		}
	}
}

func newEvent(t notify.Type, c domain.Case, recipients []string, payload map[string]any) notify.Event {
	return notify.Event{
		Type:             t,
		CaseID:           c.ID,
		CasePublicID:     c.PublicID,
		RelevantActorIDs: recipients,
		Payload:          payload,
	}
}

// recipients drops empty ids, duplicates, and the actor who caused the event.
func recipients(exclude string, ids ...string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, id := range ids {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func optionalString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

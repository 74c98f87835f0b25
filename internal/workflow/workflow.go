// Package workflow decides who may nominate and resolve awards and which
// state changes are legal. It never talks to the chat platform; approvals
// come back as a Directive for the host to carry out.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/storage"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionDeny:
		return d, nil
	default:
		return "", &ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", s)}
	}
}

func (d Decision) status() domain.Status {
	if d == DecisionApprove {
		return domain.StatusApproved
	}
	return domain.StatusDenied
}

type DirectiveKind int

const (
	DirectiveNoOp DirectiveKind = iota
	DirectiveGrantRole
)

// Directive is a side effect the host must perform after a resolution.
type Directive struct {
	Kind     DirectiveKind
	RoleName string
	UserIDs  []string
}

func GrantRole(roleName string, userIDs []string) Directive {
	return Directive{
		Kind:     DirectiveGrantRole,
		RoleName: roleName,
		UserIDs:  append([]string(nil), userIDs...),
	}
}

type ResolveResult struct {
	Nomination domain.Nomination
	Status     domain.Status
	Directive  Directive
}

// Store is the subset of storage.NominationStore the workflow needs.
type Store interface {
	Create(nominator string, userIDs, users []string, medal, reason string) (domain.Nomination, error)
	Update(id string, fn func(*domain.Nomination) error) (domain.Nomination, error)
}

// Permissions answers group membership questions; the host implements it.
type Permissions interface {
	ActorHasPermission(actor domain.Actor, group domain.PermissionGroup) bool
}

// Recorder receives workflow outcomes, typically for metrics.
type Recorder interface {
	NominationCreated()
	NominationResolved(decision string)
	WorkflowError(op, kind string)
}

type nopRecorder struct{}

func (nopRecorder) NominationCreated()        {}
func (nopRecorder) NominationResolved(string) {}
func (nopRecorder) WorkflowError(_, _ string) {}

type Workflow struct {
	store Store
	perms Permissions
	log   zerolog.Logger
	rec   Recorder
}

// New wires a workflow. rec may be nil.
func New(store Store, perms Permissions, log zerolog.Logger, rec Recorder) *Workflow {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Workflow{
		store: store,
		perms: perms,
		log:   log.With().Str("component", "workflow").Logger(),
		rec:   rec,
	}
}

// Create opens a pending nomination of the users mentioned in rawMentions.
func (w *Workflow) Create(actor domain.Actor, rawMentions, medal, reason string) (string, domain.Nomination, error) {
	n, err := w.create(actor, rawMentions, medal, reason)
	if err != nil {
		w.fail("create", actor, err)
		return "", domain.Nomination{}, err
	}

	w.rec.NominationCreated()
	w.log.Info().
		Str("nomination_id", n.ID).
		Str("actor", actor.DisplayName()).
		Str("medal", n.Medal).
		Strs("user_ids", n.UserIDs).
		Msg("nomination created")
	return n.ID, n, nil
}

func (w *Workflow) create(actor domain.Actor, rawMentions, medal, reason string) (domain.Nomination, error) {
	if !w.perms.ActorHasPermission(actor, domain.GroupNominator) {
		return domain.Nomination{}, &AuthorizationError{Actor: actor.DisplayName(), Group: domain.GroupNominator}
	}

	ids, refs := ParseMentions(rawMentions)
	if len(ids) == 0 {
		return domain.Nomination{}, &ValidationError{Field: "users", Reason: "no valid user mentions"}
	}

	medal = strings.TrimSpace(medal)
	if medal == "" {
		return domain.Nomination{}, &ValidationError{Field: "medal", Reason: "medal name is empty"}
	}

	n, err := w.store.Create(actor.DisplayName(), ids, refs, medal, strings.TrimSpace(reason))
	if err != nil {
		return domain.Nomination{}, fmt.Errorf("create nomination: %w", err)
	}
	return n, nil
}

// Resolve approves or denies a pending nomination. The status check and the
// write happen inside one store update, so concurrent calls on the same id
// resolve it at most once.
func (w *Workflow) Resolve(actor domain.Actor, id string, decision Decision) (ResolveResult, error) {
	res, err := w.resolve(actor, id, decision)
	if err != nil {
		w.fail("resolve", actor, err)
		return ResolveResult{}, err
	}

	w.rec.NominationResolved(string(decision))
	w.log.Info().
		Str("nomination_id", id).
		Str("actor", actor.DisplayName()).
		Str("decision", string(decision)).
		Msg("nomination resolved")
	return res, nil
}

func (w *Workflow) resolve(actor domain.Actor, id string, decision Decision) (ResolveResult, error) {
	if decision != DecisionApprove && decision != DecisionDeny {
		return ResolveResult{}, &ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", decision)}
	}
	if !w.perms.ActorHasPermission(actor, domain.GroupApprover) {
		return ResolveResult{}, &AuthorizationError{Actor: actor.DisplayName(), Group: domain.GroupApprover}
	}

	next := decision.status()
	resolver := actor.DisplayName()

	n, err := w.store.Update(id, func(n *domain.Nomination) error {
		if !n.Pending() {
			return ErrAlreadyResolved
		}
		n.Status = next
		n.ResolvedBy = resolver
		return nil
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ResolveResult{}, fmt.Errorf("nomination %s: %w", id, ErrUnknownNomination)
	case errors.Is(err, ErrAlreadyResolved):
		return ResolveResult{}, fmt.Errorf("nomination %s: %w", id, ErrAlreadyResolved)
	case err != nil:
		return ResolveResult{}, fmt.Errorf("resolve nomination %s: %w", id, err)
	}

	res := ResolveResult{Nomination: n, Status: n.Status}
	if decision == DecisionApprove {
		res.Directive = GrantRole(n.Medal, n.UserIDs)
	}
	return res, nil
}

func (w *Workflow) fail(op string, actor domain.Actor, err error) {
	kind := Kind(err)
	w.rec.WorkflowError(op, kind)

	ev := w.log.Info()
	if kind == "persistence" || kind == "internal" {
		ev = w.log.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("kind", kind).
		Str("actor", actor.DisplayName()).
		Msg("workflow rejected request")
}

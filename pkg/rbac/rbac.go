// Package rbac decides whether a user may perform an operation on a resource.
//
// Rules are evaluated in order and the first rule that reaches a decision wins:
// login, then global admin, then per-resource scoped checks.
package rbac

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/gochat/pkg/model"
)

var (
	// ErrLoginRequired is returned when an anonymous caller hits a guarded resource.
	ErrLoginRequired = errors.New("login required")
	// ErrForbidden is returned when a signed-in user lacks the needed privilege.
	ErrForbidden = errors.New("forbidden")
)

// Resource is the kind of object an operation acts on.
type Resource int

// Resources.
const (
	ResourceUser       Resource = iota // user accounts
	ResourceChannel                    // chat channels
	ResourceBan                        // user and IP bans
	ResourceStats                      // aggregate counters
	ResourceAdminPanel                 // admin landing page
)

// String returns the lowercase resource name used in logs.
func (r Resource) String() string {
	switch r {
	case ResourceUser:
		return "user"
	case ResourceChannel:
		return "channel"
	case ResourceBan:
		return "ban"
	case ResourceStats:
		return "stats"
	case ResourceAdminPanel:
		return "admin_panel"
	default:
		return "unknown"
	}
}

// Operation is what the caller wants to do with the resource.
type Operation int

// Operations.
const (
	OpRead   Operation = iota // fetch one instance
	OpList                    // enumerate the collection
	OpCreate                  // add an instance
	OpUpdate                  // modify an instance
	OpDelete                  // remove an instance
)

// String returns the lowercase operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpList:
		return "list"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Target identifies the resource instance. UserID is set for user resources,
// Channel for channel resources.
type Target struct {
	Resource Resource
	UserID   int64
	Channel  *model.Channel
}

// Users targets the user collection or a single user.
func Users(userID int64) Target { return Target{Resource: ResourceUser, UserID: userID} }

// Channels targets the channel collection or a single channel.
func Channels(ch *model.Channel) Target { return Target{Resource: ResourceChannel, Channel: ch} }

// Bans targets the ban collection.
func Bans() Target { return Target{Resource: ResourceBan} }

// Stats targets the statistics page.
func Stats() Target { return Target{Resource: ResourceStats} }

// AdminPanel targets the admin UI.
func AdminPanel() Target { return Target{Resource: ResourceAdminPanel} }

// Reason explains a denial.
type Reason int

// Reasons.
const (
	ReasonNone          Reason = iota // allowed
	ReasonLoginRequired               // anonymous caller
	ReasonForbidden                   // signed in but not permitted
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLoginRequired:
		return "login_required"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is either Allowed or Denied with a reason.
type Decision struct {
	reason Reason
	rule   string
}

// Allowed returns an allowing decision.
func Allowed(rule string) Decision { return Decision{reason: ReasonNone, rule: rule} }

// Denied returns a denying decision.
func Denied(reason Reason, rule string) Decision { return Decision{reason: reason, rule: rule} }

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool { return d.reason == ReasonNone }

// Reason returns why the decision denies, or ReasonNone.
func (d Decision) Reason() Reason { return d.reason }

// Rule names the rule that decided.
func (d Decision) Rule() string { return d.rule }

// Err maps a denial to ErrLoginRequired or ErrForbidden, and an allow to nil.
func (d Decision) Err() error {
	switch d.reason {
	case ReasonNone:
		return nil
	case ReasonLoginRequired:
		return ErrLoginRequired
	default:
		return ErrForbidden
	}
}

func (d Decision) String() string {
	if d.Allowed() {
		return "allowed(" + d.rule + ")"
	}
	return fmt.Sprintf("denied(%s, %s)", d.reason, d.rule)
}

// rule returns a decision and true when it applies, or false to defer to the next rule.
type rule func(u *model.User, op Operation, t Target) (Decision, bool)

var rules = []rule{
	requireLogin,
	globalAdmin,
	scoped,
}

// Authorize evaluates the rule list for u performing op on t. A nil u is an
// anonymous caller. Every denial is final for the request.
func Authorize(u *model.User, op Operation, t Target) Decision {
	for _, r := range rules {
		if d, ok := r(u, op, t); ok {
			return d
		}
	}
	return Denied(ReasonForbidden, "default")
}

func requireLogin(u *model.User, _ Operation, _ Target) (Decision, bool) {
	if u == nil {
		return Denied(ReasonLoginRequired, "login"), true
	}
	return Decision{}, false
}

func globalAdmin(u *model.User, _ Operation, _ Target) (Decision, bool) {
	if u.Admin {
		return Allowed("global_admin"), true
	}
	return Decision{}, false
}

func scoped(u *model.User, op Operation, t Target) (Decision, bool) {
	switch t.Resource {
	case ResourceUser:
		return scopedUser(u, op, t), true
	case ResourceChannel:
		return scopedChannel(u, op, t), true
	case ResourceAdminPanel:
		if len(u.AdminChannelIDs) > 0 {
			return Allowed("channel_admin_panel"), true
		}
		return Denied(ReasonForbidden, "admin_panel"), true
	default:
		// Bans and stats are global-admin only.
		return Denied(ReasonForbidden, "admin_only"), true
	}
}

func scopedUser(u *model.User, op Operation, t Target) Decision {
	switch op {
	case OpRead, OpUpdate:
		if t.UserID != 0 && t.UserID == u.ID {
			return Allowed("self")
		}
		return Denied(ReasonForbidden, "not_self")
	default:
		// Listing, creating, and deleting users is global-admin only.
		return Denied(ReasonForbidden, "admin_only")
	}
}

func scopedChannel(u *model.User, op Operation, t Target) Decision {
	switch op {
	case OpList:
		return Allowed("logged_in")
	case OpRead, OpUpdate:
		if t.Channel != nil && (t.Channel.HasAdmin(u.ID) || u.AdministersChannel(t.Channel.ID)) {
			return Allowed("channel_admin")
		}
		return Denied(ReasonForbidden, "not_channel_admin")
	default:
		return Denied(ReasonForbidden, "admin_only")
	}
}

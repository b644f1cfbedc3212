package routing

import (
	"context"
	"strings"

	"github.com/nuxeo/docroute/types"
)

// Context is the key→string lookup guards and expressions evaluate
// against. It is typically backed by the routed document's properties
// plus workflow variables.
type Context interface {
	// Get returns the value bound to key and whether it exists.
	Get(key string) (string, bool)
}

// MapContext is an in-memory Context.
type MapContext map[string]string

// Get implements Context.
func (m MapContext) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Expression is the pluggable evaluation capability the engine depends
// on. The core never assumes a particular expression language; an
// embedding application may supply any evaluator behind this interface.
type Expression interface {
	// Evaluate resolves the expression against ctx.
	Evaluate(ctx Context) (string, error)
}

const keyPrefix = "key:"

// Literal is an Expression returning a fixed value.
type Literal string

// Evaluate implements Expression.
func (l Literal) Evaluate(Context) (string, error) {
	return string(l), nil
}

// Lookup is an Expression resolving a key from the evaluation Context.
// A missing key resolves to the empty string.
type Lookup string

// Evaluate implements Expression.
func (l Lookup) Evaluate(ctx Context) (string, error) {
	if ctx == nil {
		return "", nil
	}
	v, _ := ctx.Get(string(l))
	return v, nil
}

// ParseExpression builds an Expression from its serialized form: the
// "key:" prefix denotes a Context lookup, anything else is a literal.
func ParseExpression(s string) Expression {
	if strings.HasPrefix(s, keyPrefix) {
		return Lookup(strings.TrimPrefix(s, keyPrefix))
	}
	return Literal(s)
}

// FormatExpression is the inverse of ParseExpression for the two
// built-in expression kinds. Foreign Expression implementations have no
// serialized form and format as empty.
func FormatExpression(e Expression) string {
	switch v := e.(type) {
	case Literal:
		return string(v)
	case Lookup:
		return keyPrefix + string(v)
	case nil:
		return ""
	default:
		return ""
	}
}

// DocumentHandle identifies a document in the external content
// repository. The engine treats it as opaque.
type DocumentHandle interface {
	ID() string
}

// Repository is the external document repository collaborator. It is
// used to materialize guard subjects and actor-expression contexts.
type Repository interface {
	GetDocument(ctx context.Context, id string) (DocumentHandle, error)
	GetProperty(ctx context.Context, doc DocumentHandle, path string) (string, error)
}

// PrincipalResolver resolves an actor expression into a set of principal
// identifiers. An empty result makes the owning task step unassignable.
type PrincipalResolver interface {
	ResolveActors(ctx context.Context, expr Expression, docCtx Context) ([]string, error)
}

// Registry is the read-only, versioned workflow definition registry.
type Registry interface {
	GetDefinition(ctx context.Context, id string) (*Definition, error)
}

// Archiver persists ended instances and tasks. Entities are archived,
// never deleted.
type Archiver interface {
	ArchiveInstance(ctx context.Context, inst *Instance) error
	ArchiveTask(ctx context.Context, task *Task) error
}

// Notifier is the fire-and-forget audit/notification collaborator.
// Failures (including panics) in a Notifier must never roll back engine
// state; the engine recovers and logs them.
type Notifier interface {
	OnInstanceSuspended(instanceID, reason string)
	OnTaskOpened(task *Task)
	OnTaskEnded(task *Task)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// OnInstanceSuspended implements Notifier.
func (NopNotifier) OnInstanceSuspended(string, string) {}

// OnTaskOpened implements Notifier.
func (NopNotifier) OnTaskOpened(*Task) {}

// OnTaskEnded implements Notifier.
func (NopNotifier) OnTaskEnded(*Task) {}

// LiteralResolver is a PrincipalResolver that splits the evaluated
// expression on commas. It serves embedded deployments where actor
// expressions already hold principal ids.
type LiteralResolver struct{}

// ResolveActors implements PrincipalResolver.
func (LiteralResolver) ResolveActors(_ context.Context, expr Expression, docCtx Context) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	raw, err := expr.Evaluate(docCtx)
	if err != nil {
		return nil, types.NewError(types.ErrResolverFailure, "actor expression evaluation failed").WithCause(err)
	}
	var actors []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			actors = append(actors, p)
		}
	}
	return actors, nil
}

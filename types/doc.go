// Copyright (c) DocRoute Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the DocRoute engine.

types is the lowest-level public package and depends on no other package
in the module. It defines the structured error system used by every
engine entry point, so that routing, registry, store and config can agree
on error codes without circular dependencies.

Error codes are grouped by handling policy:

  - Definition errors (NO_APPLICABLE_TRANSITION, UNKNOWN_OUTCOME, ...)
    suspend the owning workflow instance and are never retried.
  - Resolution errors (NO_ACTORS_RESOLVED) suspend the instance the same
    way, since the step cannot be offered to anyone.
  - Caller errors (FORBIDDEN, INVALID_TASK_STATE, ...) are rejected
    requests; instance state is unaffected.
  - Collaborator errors (REPOSITORY_FAILURE, RESOLVER_FAILURE, ...) are
    transient; no partial advance is persisted and the caller may retry.

Helpers: NewError / NewErrorf constructors, WithCause / WithInstance /
WithStep / WithRetryable chaining, GetErrorCode, IsErrorCode,
IsRetryable, and IsSuspending for the suspend-vs-reject decision.
*/
package types

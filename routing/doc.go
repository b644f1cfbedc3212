// Copyright (c) DocRoute Authors.
// Licensed under the MIT License.

/*
Package routing implements the document routing workflow engine: graph
definitions, guarded transition evaluation, human task management, and
the execution engine that drives instances from launch to archive.

# Overview

A workflow Definition is a graph of steps joined by guarded transitions.
The Engine instantiates a definition against a document, advances
automatic steps synchronously on the caller's goroutine, opens tasks at
human steps, spawns concurrent branches at forks and arbitrates their
arrival at joins. Ended instances are archived, never deleted.

# Core types

  - Definition / Step / Transition / Guard — the immutable graph model;
    cycles are permitted, validation is structural
  - DefinitionBuilder — fluent construction with Validate on Build
  - DefinitionSpec — JSON/YAML serialized form of a definition
  - Expression / Context — pluggable evaluation, "key:" lookups plus
    literals built in
  - Instance / StepPosition — runtime state, one mutex per instance
  - TaskRegistry / Task — human task lifecycle with reassign, delegate
    and comment accumulation
  - Engine — Launch, ResumeStep, CompleteTask, CancelInstance, GetGraph

# Transition semantics

Guarded transitions are evaluated in declaration order; the first guard
that holds wins and only that transition is taken. An unguarded default
edge is evaluated last regardless of position. Guard comparison is
byte-lexicographic over strings, so "10" is smaller than "9"; numeric
routing must zero-pad its values.

# Error policy

Definition and resolution errors suspend the instance for operator
repair via ResumeStep; caller errors reject the request; collaborator
failures are returned without persisting any partial advance. See the
types package for the code groups.
*/
package routing

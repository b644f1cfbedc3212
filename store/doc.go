// Copyright (c) DocRoute Authors.
// Licensed under the MIT License.

/*
Package store persists ended workflow instances and their tasks. Records
are archived, never deleted; re-archiving the same entity upserts, so a
failed finalization can be retried without duplicating rows.

The store implements routing.Archiver over gorm with three
interchangeable backends: embedded pure-Go sqlite (the default),
PostgreSQL and MySQL. Structured fields travel as JSON text columns to
keep the schema portable.
*/
package store

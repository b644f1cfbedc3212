// Copyright (c) DocRoute Authors.
// Licensed under the MIT License.

/*
Package registry provides the versioned workflow definition registry and
its Redis read-through cache.

InMemory stores immutable definitions keyed by id and version; lookups
resolve to the highest registered version, so publishing never disturbs
running instances. LoadDir bulk-registers JSON and YAML definition
files. Cached decorates any routing.Registry with a Redis cache of the
serialized spec, degrading to the source when the cache is unreachable.
*/
package registry

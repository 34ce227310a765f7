// Package pagination keeps paginated list views consistent with pushed
// entities.
//
// The Injector turns one normalized push into an Update for the list the
// entity belongs to. The Store holds the pages and merges updates into them:
// backward updates are prepended at the start of a page, forward updates
// appended at its end.
package pagination

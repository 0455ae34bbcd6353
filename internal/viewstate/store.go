// Package viewstate remembers the last list view (filters, sort and
// columns) of each user per list.
package viewstate

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Store persists remembered list views.
type Store interface {
	// Get returns the stored params of subject for listKey. A missing or
	// expired entry returns nil and no error.
	Get(ctx context.Context, subject, listKey string) (url.Values, error)

	// Set replaces the stored params.
	Set(ctx context.Context, subject, listKey string, params url.Values, ttl time.Duration) error

	// Delete removes the stored params. Deleting a missing entry is not an
	// error.
	Delete(ctx context.Context, subject, listKey string) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// Key returns the storage key of the remembered view of listKey.
func Key(listKey string) string {
	return fmt.Sprintf("keystone.list.%s.list.page.info", listKey)
}

// subjectKey scopes Key to one user.
func subjectKey(subject, listKey string) string {
	return "viewstate:" + subject + ":" + Key(listKey)
}

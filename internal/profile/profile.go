// Package profile resolves user display names from the document store.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/fitness-tracker/internal/leaderboard"
	"github.com/example/fitness-tracker/internal/store"
)

// Collection holds one profile document per user.
const Collection = "profiles"

// Directory looks up profiles at rank time. It satisfies
// leaderboard.ProfileDirectory, so a rename is reflected on the next rank
// computation without rewriting historical entries.
type Directory struct {
	store store.Store
}

// NewDirectory binds the directory to a document store.
func NewDirectory(st store.Store) *Directory {
	return &Directory{store: st}
}

// DisplayName returns the user's current display name.
func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	doc, err := d.store.Get(ctx, Collection, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", leaderboard.ErrProfileNotFound
		}
		return "", err
	}
	name, _ := doc.Fields["displayName"].(string)
	return name, nil
}

// SetDisplayName records a rename with a merge write so other profile
// fields survive.
func (d *Directory) SetDisplayName(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile: display name is required")
	}
	return d.store.Set(ctx, Collection, userID, map[string]any{"displayName": name}, true)
}

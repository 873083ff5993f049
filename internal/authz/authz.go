// Package authz resolves the effective permissions of an authenticated user.
//
// A user holds a permission when it is granted directly or when it is granted
// to a group whose role is among the user's externally assigned roles.
// Permissions are resolved on every call; nothing is cached.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kiranshivaraju/appauth/pkg/models"
)

// ErrForbidden is returned by Require when the permission is not held.
var ErrForbidden = errors.New("forbidden")

// Permissions is the subset of the store the resolver reads.
type Permissions interface {
	PermissionNames(ctx context.Context, userID int64, roles []string) ([]string, error)
}

// RoleSource supplies the externally assigned roles of a user.
type RoleSource interface {
	Roles(ctx context.Context, user *models.User) ([]string, error)
}

// Set is a resolved set of permission names.
type Set struct {
	names []string
}

func newSet(names []string) Set {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return Set{names: slices.Compact(sorted)}
}

// Has reports whether name is in the set. Names are compared exactly.
func (s Set) Has(name string) bool {
	_, found := slices.BinarySearch(s.names, name)
	return found
}

// Names returns the permission names in ascending order.
func (s Set) Names() []string {
	if s.names == nil {
		return []string{}
	}
	return slices.Clone(s.names)
}

func (s Set) Len() int { return len(s.names) }

// Resolver computes effective permissions.
type Resolver struct {
	perms Permissions
	roles RoleSource
}

// NewResolver creates a new Resolver.
func NewResolver(perms Permissions, roles RoleSource) *Resolver {
	return &Resolver{perms: perms, roles: roles}
}

// EffectivePermissions returns the union of the user's direct grants and the
// grants of every group mapped to one of the user's roles.
func (r *Resolver) EffectivePermissions(ctx context.Context, user *models.User) (Set, error) {
	roles, err := r.roles.Roles(ctx, user)
	if err != nil {
		return Set{}, fmt.Errorf("resolve roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}

	names, err := r.perms.PermissionNames(ctx, user.ID, roles)
	if err != nil {
		return Set{}, fmt.Errorf("resolve permissions: %w", err)
	}
	return newSet(names), nil
}

// Require returns ErrForbidden unless user holds perm.
func (r *Resolver) Require(ctx context.Context, user *models.User, perm string) error {
	set, err := r.EffectivePermissions(ctx, user)
	if err != nil {
		return err
	}
	if !set.Has(perm) {
		return ErrForbidden
	}
	return nil
}

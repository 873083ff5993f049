package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/config"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

// StaticRoles maps lower-cased user names to roles.
type StaticRoles map[string][]string

// ParseRoleMap parses "alice=Admin|Manager;bob=Viewer". Names are lower-cased,
// role names are kept as written. An empty string yields an empty map.
func ParseRoleMap(s string) (StaticRoles, error) {
	roles := StaticRoles{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, list, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid role map entry %q", entry)
		}
		for _, role := range strings.Split(list, "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles[name] = append(roles[name], role)
			}
		}
	}
	return roles, nil
}

func (s StaticRoles) Roles(_ context.Context, user *models.User) ([]string, error) {
	return s[strings.ToLower(user.Name)], nil
}

// SetStore reads a Redis set.
type SetStore interface {
	Members(ctx context.Context, key string) ([]string, error)
}

// RedisRoles reads roles published by the identity provider into the set
// roles:user:<name>. Redis is authoritative for roles.
type RedisRoles struct {
	sets SetStore
}

func NewRedisRoles(sets SetStore) *RedisRoles {
	return &RedisRoles{sets: sets}
}

func (r *RedisRoles) Roles(ctx context.Context, user *models.User) ([]string, error) {
	roles, err := r.sets.Members(ctx, cache.RolesKey(user.Name))
	if err != nil {
		return nil, fmt.Errorf("read roles of %q: %w", user.Name, err)
	}
	return roles, nil
}

// NewRoleSource builds the RoleSource selected by ROLE_SOURCE.
func NewRoleSource(cfg config.RolesConfig, sets SetStore) (RoleSource, error) {
	switch cfg.Source {
	case "static":
		roles, err := ParseRoleMap(cfg.Map)
		if err != nil {
			return nil, fmt.Errorf("parse ROLE_MAP: %w", err)
		}
		return roles, nil
	case "redis":
		return NewRedisRoles(sets), nil
	default:
		return nil, fmt.Errorf("unknown role source %q", cfg.Source)
	}
}

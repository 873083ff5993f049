package cache

import (
	"fmt"
	"strings"
)

func RateLimitKey(userID int64) string {
	return fmt.Sprintf("ratelimit:user:%d", userID)
}

func LoginRateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:login:%s", clientIP)
}

// AuthFailureKey counts rejected Authorization headers per client address.
func AuthFailureKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:authfail:%s", clientIP)
}

func RotationLockKey() string {
	return "lock:session-rotation"
}

// RolesKey is the set holding the roles of a user. Names are matched
// case-insensitively, like logins.
func RolesKey(userName string) string {
	return fmt.Sprintf("roles:user:%s", strings.ToLower(userName))
}

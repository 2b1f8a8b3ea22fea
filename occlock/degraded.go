package occlock

import (
	"fmt"
	"strings"
	"time"
)

// degradedPrefix marks tokens handed out while the lock store was
// unreachable. Such tokens are never written to the lock store.
const degradedPrefix = "DEGRADED:"

func degradedToken(ownerID string, now time.Time) string {
	return fmt.Sprintf("%s%s:%d", degradedPrefix, ownerID, now.Unix())
}

// IsDegraded reports whether token was issued in degraded mode. Release
// skips the lock store entirely for such tokens.
func IsDegraded(token string) bool {
	return strings.HasPrefix(token, degradedPrefix)
}

package pagecache

import (
	"fmt"
	"strings"
)

var userEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key identifies one cached page of one user's listing.
type Key struct {
	UserID string
	Page   int
	Limit  int
}

func (k Key) String() string {
	return fmt.Sprintf("%spage:%d:limit:%d", UserPrefix(k.UserID), k.Page, k.Limit)
}

// UserPrefix is the key prefix shared by every cached page of userID.
// The user id is escaped so that no user's prefix is a prefix of another's.
func UserPrefix(userID string) string {
	return "notes:" + userEscaper.Replace(userID) + ":"
}

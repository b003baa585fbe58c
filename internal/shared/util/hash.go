package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// OwnerKey returns the storage namespace for an upload owner. Signed-in users
// and guests ("guest:<id>") hash into the same flat space, so keys never leak
// the raw identity.
func OwnerKey(ownerID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ownerID)))
	return hex.EncodeToString(sum[:])
}

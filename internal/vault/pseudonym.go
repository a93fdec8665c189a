package vault

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
)

// Word lists for deterministic pseudonym generation. Alpine-themed, 20x20
// combinations per kind. The lists are fixed: changing them changes every
// generated token.
var adjectives = []string{
	"alpine", "sunny", "snowy", "cozy", "foggy", "misty", "breezy", "rocky",
	"meadow", "crystal", "golden", "silver", "munchy", "happy", "sleepy", "zippy",
	"bouncy", "fluffy", "wise", "brave",
}

var animals = []string{
	"marmot", "chamois", "ibex", "deer", "eagle", "otter", "beaver", "fox",
	"badger", "lynx", "owl", "falcon", "hare", "squirrel", "hedgehog", "trout",
	"salamander", "bat", "woodpecker", "bear",
}

// kindSuffixes keeps pseudonyms visually distinguishable by category
// without revealing the original value. Kinds without an entry carry no
// suffix.
var kindSuffixes = map[privacy.Kind]string{
	privacy.KindPhoneAT:    ".at",
	privacy.KindPhoneDE:    ".de",
	privacy.KindIBAN:       ".iban",
	privacy.KindIPAddress:  ".ip",
	privacy.KindCreditCard: ".card",
	privacy.KindNationalID: ".id",
}

// Pseudonym deterministically derives a human-readable token from an
// original value. The same (original, kind) pair always yields the same
// token, independent of tenant.
func Pseudonym(original string, kind privacy.Kind) string {
	sum := sha256.Sum256([]byte(original))
	h := binary.BigEndian.Uint64(sum[:8])

	adjective := adjectives[h%uint64(len(adjectives))]
	animal := animals[(h/uint64(len(adjectives)))%uint64(len(animals))]

	return adjective + "-" + animal + kindSuffixes[kind]
}

// OriginalHash computes the tenant-scoped lookup key for an original value.
// The tenant prefix ensures identical values in different tenants produce
// distinct mapping rows.
func OriginalHash(tenantID, original string) string {
	sum := sha256.Sum256([]byte(tenantID + ":" + original))
	return hex.EncodeToString(sum[:])
}

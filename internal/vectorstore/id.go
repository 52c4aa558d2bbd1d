package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// recordID derives a deterministic record id from the project and the
// record's content parts. The same inputs always produce the same id, which
// makes Add operations idempotent upserts.
//
// The project id participates in the hash so identical knowledge added to
// two projects yields distinct records. Parts are separated by NUL bytes to
// keep ("ab","c") and ("a","bc") from colliding.
func recordID(projectID uuid.UUID, category Category, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(projectID.String()))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:32] + category.idSuffix()
}

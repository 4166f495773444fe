package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/satriahrh/cocoa-fruit/companion/domain"
)

// New returns a domain.Hasher backed by SHA‑256. The namespace is mixed in so
// account keys differ between deployments sharing one Redis.
func New(namespace string) domain.Hasher { return sha256Hasher{namespace: namespace} }

type sha256Hasher struct {
	namespace string
}

func (h sha256Hasher) Hash(data []byte) string {
	sum := sha256.New()
	sum.Write([]byte(h.namespace))
	sum.Write([]byte{0})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil))
}

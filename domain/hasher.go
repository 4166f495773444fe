package domain

// Hasher derives opaque storage keys from account identities.
type Hasher interface {
	Hash(data []byte) string
}

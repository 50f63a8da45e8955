package domain

// Store is the key-value collaborator that persists activities. Keys returns
// keys in insertion order, oldest first.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Has(key string) (bool, error)
	Keys() ([]string, error)
}

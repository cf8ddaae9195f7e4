package ports

// StoragePort is the durable key/value boundary the engine checkpoints
// through. Implementations must be safe for concurrent use.
type StoragePort interface {
	Get(key string) (value []byte, exists bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error

	ListByPrefix(prefix string) ([]KeyValue, error)
	DeleteByPrefix(prefix string) (deleted int, err error)

	Close() error
}

type KeyValue struct {
	Key   string
	Value []byte
}

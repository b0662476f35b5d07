package store

import (
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"lector/tts"
)

// progressPrefix namespaces progress records so the database can hold
// other record kinds later.
const progressPrefix = "progress:"

// Badger is a Store backed by a BadgerDB directory.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the badger database at dir, creating it when absent.
func OpenBadger(dir string, logger *log.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Load(key string) (tts.Progress, error) {
	var p tts.Progress
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(progressPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return tts.Progress{}, ErrNotFound
	}
	if err != nil {
		return tts.Progress{}, err
	}
	return p, nil
}

func (b *Badger) Save(key string, p tts.Progress) error {
	val, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(progressPrefix+key), val)
	})
}

func (b *Badger) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(progressPrefix + key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) Keys() ([]string, error) {
	prefix := []byte(progressPrefix)
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger funnels badger's chatter into the application logger,
// keeping only warnings and errors.
type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Infof(string, ...interface{})  {}
func (l badgerLogger) Debugf(string, ...interface{}) {}

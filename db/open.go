package db

import (
	"fmt"
	"io"

	"github.com/deemkeen/fedwire/domain"
	"github.com/deemkeen/fedwire/util"
)

const (
	NamespaceActivities = "activities"
	NamespaceInbox      = "inbox"
)

// Stores bundles the namespaces the server persists.
type Stores struct {
	Activities domain.Store
	Inbox      domain.Store
	closer     io.Closer
}

func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenStores opens the backend selected by conf.Conf.Storage ("sqlite" or "bolt").
func OpenStores(conf *util.AppConfig) (*Stores, error) {
	path := conf.Conf.DbPath
	if path == "" {
		path = "fedwire.db"
	}
	if path != ":memory:" {
		path = util.StatePath(path)
	}

	switch conf.Conf.Storage {
	case "", "sqlite":
		database, err := Open(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Activities: database.Store(NamespaceActivities),
			Inbox:      database.Store(NamespaceInbox),
			closer:     database,
		}, nil
	case "bolt":
		database, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Activities: database.Store(NamespaceActivities),
			Inbox:      database.Store(NamespaceInbox),
			closer:     database,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", conf.Conf.Storage)
	}
}

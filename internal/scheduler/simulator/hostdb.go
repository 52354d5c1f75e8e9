package simulator

import (
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

const (
	hostsTable   = "hosts"
	idIndex      = "id"
	clusterIndex = "cluster"
)

// hostDb is the registry of simulated hosts.
// Hosts are stored by pointer; only fields that are not indexed may be mutated after insertion.
type hostDb struct {
	db *memdb.MemDB
}

func newHostDb() (*hostDb, error) {
	db, err := memdb.NewMemDB(hostDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &hostDb{db: db}, nil
}

func (hdb *hostDb) upsert(hosts ...*model.HostView) error {
	txn := hdb.db.Txn(true)
	defer txn.Abort()
	for _, host := range hosts {
		if err := txn.Insert(hostsTable, host); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	return nil
}

func (hdb *hostDb) get(id string) (*model.HostView, error) {
	txn := hdb.db.Txn(false)
	obj, err := txn.First(hostsTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "host", Value: id})
	}
	return obj.(*model.HostView), nil
}

// byCluster returns the hosts of the given cluster ordered by id.
func (hdb *hostDb) byCluster(cluster string) ([]*model.HostView, error) {
	txn := hdb.db.Txn(false)
	it, err := txn.Get(hostsTable, clusterIndex, cluster)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collectHosts(it), nil
}

// all returns every host ordered by id.
func (hdb *hostDb) all() ([]*model.HostView, error) {
	txn := hdb.db.Txn(false)
	it, err := txn.Get(hostsTable, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collectHosts(it), nil
}

func collectHosts(it memdb.ResultIterator) []*model.HostView {
	rv := make([]*model.HostView, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rv = append(rv, obj.(*model.HostView))
	}
	return rv
}

func hostDbSchema() *memdb.DBSchema {
	indexes := make(map[string]*memdb.IndexSchema)
	indexes[idIndex] = &memdb.IndexSchema{
		Name:    idIndex,
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "Id"},
	}
	indexes[clusterIndex] = &memdb.IndexSchema{
		Name:         clusterIndex, // entries with equal cluster are keyed by id as well
		Unique:       false,
		AllowMissing: true,
		Indexer:      &memdb.StringFieldIndex{Field: "Cluster"},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			hostsTable: {
				Name:    hostsTable,
				Indexes: indexes,
			},
		},
	}
}

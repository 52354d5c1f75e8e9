package simulator

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonsched/carbonsched/internal/common/schederrors"
	"github.com/carbonsched/carbonsched/internal/scheduler/model"
)

func TestHostDb(t *testing.T) {
	hdb, err := newHostDb()
	require.NoError(t, err)
	capacity := model.NewResources("4", "16Gi", "0")
	require.NoError(t, hdb.upsert(
		model.NewHostView("west-1", "west", capacity),
		model.NewHostView("east-0", "east", capacity),
		model.NewHostView("west-0", "west", capacity),
	))

	host, err := hdb.get("east-0")
	require.NoError(t, err)
	assert.Equal(t, "east", host.Cluster)

	_, err = hdb.get("north-0")
	var notFound *schederrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))

	west, err := hdb.byCluster("west")
	require.NoError(t, err)
	assert.Equal(t, []string{"west-0", "west-1"}, hostIds(west))

	none, err := hdb.byCluster("north")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := hdb.all()
	require.NoError(t, err)
	assert.Equal(t, []string{"east-0", "west-0", "west-1"}, hostIds(all))
}

func TestHostDb_MutationsAreVisible(t *testing.T) {
	hdb, err := newHostDb()
	require.NoError(t, err)
	host := model.NewHostView("h", "c", model.NewResources("4", "16Gi", "0"))
	require.NoError(t, hdb.upsert(host))

	host.Reserve(model.NewResources("1", "1Gi", "0"))

	stored, err := hdb.get("h")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.InstanceCount)
}

func hostIds(hosts []*model.HostView) []string {
	rv := make([]string, len(hosts))
	for i, host := range hosts {
		rv[i] = host.Id
	}
	return rv
}

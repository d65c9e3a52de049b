//go:build mssql || all_adapters

package mssql

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/testhelpers"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/upgrade"
)

func newIntegrationAdapter(t *testing.T) *Adapter {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := FromMap(testDB.ConfigMap())
	require.NoError(t, err)

	adapter, err := NewAdapter(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func runAll(t *testing.T, ctx context.Context, r datasource.CommandRunner, cmds []sqlgen.Command) {
	t.Helper()
	for _, cmd := range cmds {
		_, err := r.Exec(ctx, cmd)
		require.NoError(t, err, cmd.Text)
	}
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter := newIntegrationAdapter(t)
	assert.NoError(t, adapter.TestConnection(context.Background()))
}

func TestAdapter_NewAdapter_WrongDatabaseFails(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	config := testDB.ConfigMap()
	config["database"] = "nonexistent_database_12345"
	cfg, err := FromMap(config)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = NewAdapter(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestAdapter_ContainerRoundTrip(t *testing.T) {
	adapter := newIntegrationAdapter(t)
	ctx := context.Background()

	target, err := sqlgen.NewTarget("ItPerson"+uuid.NewString()[:8], "", models.StreamModeSync,
		[]models.PropertyDefinition{{Name: "FirstName", DataType: models.DataTypeText}})
	require.NoError(t, err)

	gen, err := sqlgen.NewGenerator(sqlgen.DefaultBuilders(sqlgen.Options{}))
	require.NoError(t, err)

	create, err := gen.CreateContainer(target)
	require.NoError(t, err)
	runAll(t, ctx, adapter, create)
	// Creation is guarded, so a second run is a no-op.
	runAll(t, ctx, adapter, create)

	t.Cleanup(func() {
		remove, err := gen.RemoveContainer(target)
		require.NoError(t, err)
		runAll(t, context.Background(), adapter, remove)
	})

	snapshot := &models.EntitySnapshot{
		ID:               uuid.New(),
		PersistInfo:      models.PersistInfo{Version: 1, Hash: "h1"},
		OriginEntityCode: "C:/Person#1",
		EntityType:       "/Person",
		Timestamp:        time.Now().UTC(),
		Properties:       []models.Property{{Name: "FirstName", Value: "Ada"}},
		Codes: []models.EntityCode{
			{Value: "C:/Person#1", IsOrigin: true},
			{Value: "C:/Person#alias"},
		},
		OutgoingEdges: []models.Edge{{
			EdgeType:    "/WorksFor",
			ToReference: "C:/Org#1",
			Properties:  map[string]string{"role": "cto"},
		}},
	}

	store, err := gen.StoreSnapshot(target, snapshot)
	require.NoError(t, err)
	require.NoError(t, adapter.WithTransaction(ctx, func(ctx context.Context, tx datasource.Tx) error {
		runAll(t, ctx, tx, store)
		return nil
	}))

	check, err := gen.ExistenceCheck(target, snapshot)
	require.NoError(t, err)
	value, err := adapter.Scalar(ctx, check)
	require.NoError(t, err)
	result, err := sqlgen.ClassifyExistence(value)
	require.NoError(t, err)
	assert.Equal(t, models.SameVersionExists, result)

	// Drop one code and re-store: the code table converges on the new set.
	snapshot.Codes = snapshot.Codes[:1]
	snapshot.PersistInfo = models.PersistInfo{Version: 2, Hash: "h2"}
	store, err = gen.StoreSnapshot(target, snapshot)
	require.NoError(t, err)
	runAll(t, ctx, adapter, store)

	var codes int
	require.NoError(t, adapter.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+target.Names.Codes.String()+" WHERE [EntityId] = @p1", snapshot.ID.String()).Scan(&codes))
	assert.Equal(t, 1, codes)

	tx, err := adapter.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	report, err := upgrade.NewUpgrader(sqlgen.Options{}, zaptest.NewLogger(t)).Run(ctx, tx, target)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Empty(t, report.AddedColumns)
	assert.Empty(t, report.Incompatible)

	del, err := gen.DeleteEntity(target, snapshot.ID)
	require.NoError(t, err)
	runAll(t, ctx, adapter, del)

	value, err = adapter.Scalar(ctx, check)
	require.NoError(t, err)
	result, err = sqlgen.ClassifyExistence(value)
	require.NoError(t, err)
	assert.Equal(t, models.NoVersionExists, result)
}

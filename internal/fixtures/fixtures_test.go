package fixtures

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/testutil"
)

const configSource = `
index: people: {
	settings: number_of_replicas: 0
	types: person: {
		source_index: "crm"
		source_type:  "contact"
		fields: ["name"]
		mapping: properties: name: type: "keyword"
	}
}
index: companies: types: company: {
	source_index: "erp"
	source_type:  "company"
}
`

func loadConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg, err := config.Parse("fixtures.cue", []byte(configSource))
	require.NoError(t, err)
	return cfg
}

func TestCreateTargetIndexes(t *testing.T) {
	cfg := loadConfig(t)
	mem := testutil.NewMemory()
	ctx := context.Background()

	created, err := CreateTargetIndexes(ctx, cfg, mem)
	require.NoError(t, err)
	assert.Equal(t, []string{"companies", "people"}, created)

	people, ok := mem.Index("people")
	require.True(t, ok)
	assert.Equal(t, DefaultShards, people.Settings["number_of_shards"])
	assert.Equal(t, json.Number("0"), people.Settings["number_of_replicas"])
	assert.Contains(t, people.Mappings, "person")

	companies, ok := mem.Index("companies")
	require.True(t, ok)
	assert.Empty(t, companies.Mappings)

	created, err = CreateTargetIndexes(ctx, cfg, mem)
	require.NoError(t, err)
	assert.Empty(t, created, "existing indexes are left alone")
}

func TestCreateTargetIndexes_StoreFailure(t *testing.T) {
	cfg := loadConfig(t)
	mem := testutil.NewMemory()
	mem.Inject(testutil.Fault{Op: testutil.OpCreateIndex, Key: "people", Err: ir.ErrStoreUnavailable})

	created, err := CreateTargetIndexes(context.Background(), cfg, mem)
	assert.ErrorIs(t, err, ir.ErrStoreUnavailable)
	assert.Equal(t, []string{"companies"}, created)
}

func TestRedegraphmalize(t *testing.T) {
	cfg := loadConfig(t)
	mem := testutil.NewMemory()
	mem.Put("crm", "contact", "1", ir.Document{"name": "ann", "secret": "x"})
	mem.Put("crm", "contact", "2", ir.Document{"name": "bob"})
	mem.Put("erp", "company", "acme", ir.Document{"name": "acme"})

	e := engine.New(mem, mem, mem, config.StaticProvider(cfg))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	t.Cleanup(func() {
		e.Stop()
		cancel()
	})

	actions := Redegraphmalize(ctx, cfg, e, engine.NopStatus{})
	require.Len(t, actions, 2)
	assert.Equal(t, "crm", actions[0].Request().ID.Index)
	assert.Equal(t, "erp", actions[1].Request().ID.Index)

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	for _, a := range actions {
		res, err := a.Wait(waitCtx)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}

	assert.Equal(t, 3, mem.TargetCount())
	ann, ok := mem.Target("people", "person", "1")
	require.True(t, ok)
	assert.Equal(t, ir.Document{"name": "ann"}, ann.Document)
}

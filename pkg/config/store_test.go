package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalogJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"web": {"port": 8080},
		"db": {"namespace": "data", "kind": "svc", "object": "pg", "port": 5432, "serviceport": "5432", "comment": "ignored"},
		"broken": {"namespace": "x"}
	}`)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, []string{"broken", "db", "web"}, cat.Names())
	assert.Equal(t, path, cat.Source())

	web, err := cat.Lookup("web")
	require.NoError(t, err)
	assert.Equal(t, ServiceDescription{Name: "web", Port: "8080"}, web)
	assert.Equal(t, "web", web.Target())

	db, err := cat.Lookup("db")
	require.NoError(t, err)
	assert.Equal(t, "data", db.Namespace)
	assert.Equal(t, "svc", db.Kind)
	assert.Equal(t, "pg", db.Target())
	assert.Equal(t, Port("5432"), db.Port)
	assert.Equal(t, Port("5432"), db.ServicePort)

	broken, err := cat.Lookup("broken")
	require.NoError(t, err, "lookup only checks presence")
	assert.ErrorIs(t, broken.Validate(), ErrInvalidService)
}

func TestLoadCatalogMissingFileIsEmpty(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
	assert.Empty(t, cat.Names())
}

func TestLoadCatalogRejectsFractionalPort(t *testing.T) {
	path := writeFile(t, "config.json", `{"web": {"port": 80.5}}`)
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestLoadCatalogYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
web:
  port: 8080
db:
  namespace: data
  kind: svc
  object: pg
  port: "5432"
  serviceport: 15432
`)
	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	db, err := cat.Lookup("db")
	require.NoError(t, err)
	assert.Equal(t, Port("5432"), db.Port)
	assert.Equal(t, Port("15432"), db.ServicePort)
	assert.Equal(t, "db", db.Name)
}

func TestLookupUnknownService(t *testing.T) {
	cat := NewCatalog(map[string]ServiceDescription{"web": {Port: "80"}})

	_, err := cat.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidService))

	var invalid *InvalidServiceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "nope", invalid.Service)
}

func TestCatalogIsImmutableThroughAccessors(t *testing.T) {
	cat := NewCatalog(map[string]ServiceDescription{"a": {Port: "1"}, "b": {Port: "2"}})

	names := cat.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, cat.Names())

	svc, _ := cat.Lookup("a")
	svc.Port = "9999"
	again, _ := cat.Lookup("a")
	assert.Equal(t, Port("1"), again.Port)
}

func TestMarshalCatalogJSONRoundTrip(t *testing.T) {
	services := []ServiceDescription{
		{Name: "db", Namespace: "data", Kind: "svc", Object: "pg", Port: "5432", ServicePort: "5432"},
		{Name: "named", Port: "http"},
	}
	path := filepath.Join(t.TempDir(), "out", "config.json")
	require.NoError(t, WriteCatalogJSON(path, services))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port": 5432`)
	assert.Contains(t, string(data), `"port": "http"`)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, services, cat.All())
}

func TestSQLiteCatalogStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	store, err := OpenSQLiteCatalogStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Put(
		ServiceDescription{Name: "web", Port: "8080"},
		ServiceDescription{Name: "db", Namespace: "data", Kind: "svc", Object: "pg", Port: "5432", ServicePort: "5432"},
	))
	require.NoError(t, store.Put(ServiceDescription{Name: "web", Port: "9090"}))

	err = store.Delete("missing")
	assert.ErrorIs(t, err, ErrInvalidService)
	require.NoError(t, store.Close())

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, cat.Names())

	web, err := cat.Lookup("web")
	require.NoError(t, err)
	assert.Equal(t, Port("9090"), web.Port)

	db, err := cat.Lookup("db")
	require.NoError(t, err)
	assert.Equal(t, "pg", db.Object)
}

func TestSQLiteCatalogMissingDatabaseIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "loading must not create the database")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/x/config.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "config.json"), got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

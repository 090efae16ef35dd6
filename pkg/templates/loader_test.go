package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

const sampleCatalog = `templates:
  - id: lead-capture
    name: Lead capture
    description: Capture leads from a webhook and notify the team
    category: sales
    required_credentials:
      - slackApi
    public: true
    featured: true
    definition:
      nodes:
        - name: Webhook
          type: n8n-nodes-base.webhook
          parameters:
            path: leads
      connections: {}
  - id: nightly-digest
    name: Nightly digest
    category: reporting
    public: true
    definition:
      nodes:
        - name: Cron
          type: n8n-nodes-base.cron
      connections: {}
`

func writeCatalog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "catalog.yaml", sampleCatalog)

	templates, err := LoadCatalog(filepath.Join(dir, "catalog.yaml"))
	require.NoError(t, err)
	require.Len(t, templates, 2)

	lead := templates[0]
	assert.Equal(t, "lead-capture", lead.ID)
	assert.Equal(t, "Lead capture", lead.Name)
	assert.Equal(t, "sales", lead.Category)
	assert.Equal(t, []string{"slackApi"}, lead.RequiredCredentials)
	assert.True(t, lead.Featured)

	nodes, ok := lead.Definition["nodes"].([]interface{})
	require.True(t, ok)
	require.Len(t, nodes, 1)
	node, ok := nodes[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "n8n-nodes-base.webhook", node["type"])
}

func TestLoadCatalogRejectsIncompleteEntries(t *testing.T) {
	dir := t.TempDir()

	writeCatalog(t, dir, "missing-id.yaml", `templates:
  - name: No ID
    definition:
      nodes: []
`)
	_, err := LoadCatalog(filepath.Join(dir, "missing-id.yaml"))
	assert.Error(t, err)

	writeCatalog(t, dir, "missing-definition.yaml", `templates:
  - id: no-def
    name: No definition
`)
	_, err = LoadCatalog(filepath.Join(dir, "missing-definition.yaml"))
	assert.Error(t, err)
}

func TestSeedFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "catalog.yaml", sampleCatalog)
	writeCatalog(t, dir, "notes.txt", "not a catalog")

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	store := provider.GetTemplateStore()

	require.NoError(t, SeedFromDirectory(store, dir, logging.NewNopLogger()))

	templates, err := store.ListTemplates()
	require.NoError(t, err)
	assert.Len(t, templates, 2)
}

func TestSeedFromDirectoryPreservesInstallCount(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "catalog.yaml", sampleCatalog)

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	store := provider.GetTemplateStore()

	require.NoError(t, SeedFromDirectory(store, dir, logging.NewNopLogger()))
	require.NoError(t, store.IncrementInstallCount("lead-capture"))

	// Re-seeding refreshes the catalog entry without resetting the counter
	require.NoError(t, SeedFromDirectory(store, dir, logging.NewNopLogger()))

	template, err := store.GetTemplate("lead-capture")
	require.NoError(t, err)
	assert.Equal(t, int64(1), template.InstallCount)
}

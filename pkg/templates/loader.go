package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// catalogFile is the on-disk shape of a template catalog
type catalogFile struct {
	Templates []catalogEntry `yaml:"templates"`
}

type catalogEntry struct {
	ID                  string                 `yaml:"id"`
	Name                string                 `yaml:"name"`
	Description         string                 `yaml:"description"`
	Category            string                 `yaml:"category"`
	RequiredCredentials []string               `yaml:"required_credentials"`
	Public              bool                   `yaml:"public"`
	Featured            bool                   `yaml:"featured"`
	Definition          map[string]interface{} `yaml:"definition"`
}

// LoadCatalog parses a YAML catalog file into templates
func LoadCatalog(path string) ([]storage.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	templates := make([]storage.Template, 0, len(file.Templates))
	for _, entry := range file.Templates {
		if entry.ID == "" || entry.Name == "" {
			return nil, fmt.Errorf("catalog entry in %s is missing id or name", path)
		}
		if entry.Definition == nil {
			return nil, fmt.Errorf("catalog entry %s has no definition", entry.ID)
		}

		templates = append(templates, storage.Template{
			ID:                  entry.ID,
			Name:                entry.Name,
			Description:         entry.Description,
			Category:            entry.Category,
			Definition:          entry.Definition,
			RequiredCredentials: entry.RequiredCredentials,
			Public:              entry.Public,
			Featured:            entry.Featured,
			CreatedAt:           time.Now(),
		})
	}

	return templates, nil
}

// SeedFromDirectory loads every catalog file in a directory into the
// template store. Existing templates are refreshed in place; their install
// counters and creation times are preserved.
func SeedFromDirectory(store storage.TemplateStore, dir string, logger logging.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}

	seeded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		templates, err := LoadCatalog(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		for _, template := range templates {
			if existing, err := store.GetTemplate(template.ID); err == nil {
				template.InstallCount = existing.InstallCount
				template.CreatedAt = existing.CreatedAt
			}
			if err := store.SaveTemplate(template); err != nil {
				return fmt.Errorf("failed to save template %s: %w", template.ID, err)
			}
			seeded++
		}
	}

	logger.LogSystemEvent("templates_seeded", map[string]interface{}{
		"directory": dir,
		"count":     seeded,
	})

	return nil
}

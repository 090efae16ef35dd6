// Package templates installs reusable workflow definitions onto connected
// n8n instances.
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/sync"
)

// InstallationStatusInstalled marks a completed installation
const InstallationStatusInstalled = "installed"

// ClientProvider hands out API clients for integrations
type ClientProvider interface {
	ClientFor(accountID, integrationID string) (*n8n.Client, error)
}

// Installer deploys templates to remote instances and mirrors the result
type Installer struct {
	templates  storage.TemplateStore
	workflows  storage.WorkflowStore
	clients    ClientProvider
	classifier *sync.Classifier
	logger     logging.Logger
}

// NewInstaller creates a new template installer
func NewInstaller(templates storage.TemplateStore, workflows storage.WorkflowStore, clients ClientProvider, logger logging.Logger) *Installer {
	return &Installer{
		templates:  templates,
		workflows:  workflows,
		clients:    clients,
		classifier: sync.NewClassifier(),
		logger:     logger,
	}
}

// Install creates a workflow from a template on the target integration. The
// installed workflow is renamed to show its template origin, per-node
// parameter patches from customConfig are merged in, and the result is
// mirrored locally like a synced workflow. The template's install counter
// is bumped only after everything succeeded.
func (i *Installer) Install(ctx context.Context, accountID, templateID, integrationID string, customConfig map[string]map[string]interface{}) (storage.TemplateInstallation, error) {
	template, err := i.templates.GetTemplate(templateID)
	if err != nil {
		return storage.TemplateInstallation{}, err
	}

	definition, err := buildDefinition(template, customConfig)
	if err != nil {
		return storage.TemplateInstallation{}, err
	}

	client, err := i.clients.ClientFor(accountID, integrationID)
	if err != nil {
		return storage.TemplateInstallation{}, err
	}

	created, err := client.CreateWorkflow(ctx, definition)
	if err != nil {
		return storage.TemplateInstallation{}, fmt.Errorf("failed to create workflow from template %s: %w", template.Name, err)
	}

	record := storage.Workflow{
		AccountID:     accountID,
		IntegrationID: integrationID,
		RemoteID:      created.ID,
		Name:          created.Name,
		TriggerType:   i.classifier.Classify(*created),
		TriggerActive: created.Active,
		IsSynced:      true,
	}
	if record.TriggerType == sync.TriggerTypeWebhook {
		record.WebhookPath = webhookPath(*created)
	}

	record, _, err = i.workflows.UpsertWorkflow(record)
	if err != nil {
		return storage.TemplateInstallation{}, fmt.Errorf("failed to mirror installed workflow: %w", err)
	}

	installation := storage.TemplateInstallation{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		TemplateID:    templateID,
		IntegrationID: integrationID,
		WorkflowID:    record.ID,
		CustomConfig:  customConfig,
		Status:        InstallationStatusInstalled,
		CreatedAt:     time.Now(),
	}
	if err := i.templates.SaveInstallation(installation); err != nil {
		return storage.TemplateInstallation{}, fmt.Errorf("failed to save installation: %w", err)
	}

	if err := i.templates.IncrementInstallCount(templateID); err != nil {
		i.logger.Warn("failed to bump install count",
			logging.Field{Key: "template_id", Value: templateID},
			logging.Field{Key: "error", Value: err.Error()})
	}

	i.logger.LogSystemEvent("template_installed", map[string]interface{}{
		"template_id":    templateID,
		"integration_id": integrationID,
		"workflow_id":    record.ID,
	})

	return installation, nil
}

// Uninstall removes an installed workflow. The remote delete is best
// effort: a vanished remote workflow must not strand the local records.
func (i *Installer) Uninstall(ctx context.Context, accountID, installationID string) error {
	installation, err := i.templates.GetInstallation(accountID, installationID)
	if err != nil {
		return err
	}

	workflow, err := i.workflows.GetWorkflow(accountID, installation.WorkflowID)
	if err == nil {
		if client, clientErr := i.clients.ClientFor(accountID, installation.IntegrationID); clientErr == nil {
			if deleteErr := client.DeleteWorkflow(ctx, workflow.RemoteID); deleteErr != nil {
				i.logger.Warn("remote workflow delete failed",
					logging.Field{Key: "workflow_id", Value: workflow.ID},
					logging.Field{Key: "error", Value: deleteErr.Error()})
			}
		}

		if err := i.workflows.DeleteWorkflow(accountID, workflow.ID); err != nil {
			return fmt.Errorf("failed to delete workflow record: %w", err)
		}
	}

	if err := i.templates.DeleteInstallation(accountID, installationID); err != nil {
		return fmt.Errorf("failed to delete installation: %w", err)
	}

	i.logger.LogSystemEvent("template_uninstalled", map[string]interface{}{
		"installation_id": installationID,
	})

	return nil
}

// buildDefinition produces the workflow definition to deploy: a deep copy
// of the template definition with the install-time adjustments applied
func buildDefinition(template storage.Template, customConfig map[string]map[string]interface{}) (map[string]interface{}, error) {
	definition, err := deepCopy(template.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to copy template definition: %w", err)
	}

	definition["name"] = template.Name + " (from template)"

	settings, ok := definition["settings"].(map[string]interface{})
	if !ok {
		settings = make(map[string]interface{})
		definition["settings"] = settings
	}
	settings["executionOrder"] = "v1"

	if len(customConfig) > 0 {
		nodes, _ := definition["nodes"].([]interface{})
		for _, raw := range nodes {
			node, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := node["name"].(string)
			patch, ok := customConfig[name]
			if !ok {
				continue
			}

			parameters, ok := node["parameters"].(map[string]interface{})
			if !ok {
				parameters = make(map[string]interface{})
				node["parameters"] = parameters
			}
			for key, value := range patch {
				parameters[key] = value
			}
		}
	}

	return definition, nil
}

// deepCopy clones a definition through JSON so template catalog entries are
// never mutated by an install
func deepCopy(in map[string]interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]interface{})
	}

	return out, nil
}

func webhookPath(workflow n8n.Workflow) string {
	for _, node := range workflow.Nodes {
		if !strings.Contains(strings.ToLower(node.Type), "webhook") {
			continue
		}
		if path, ok := node.Parameters["path"].(string); ok && path != "" {
			return path
		}
	}
	return ""
}

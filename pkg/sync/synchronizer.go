package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/logging"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/storage"
)

// syncPageLimit caps one sync pass at a single page of workflows
const syncPageLimit = 100

// ClientProvider hands out API clients for integrations
type ClientProvider interface {
	ClientFor(accountID, integrationID string) (*n8n.Client, error)
}

// SyncResult summarizes one sync pass
type SyncResult struct {
	// Success is true when no per-workflow errors occurred
	Success bool `json:"success"`

	// Synced is the number of remote workflows processed
	Synced int `json:"synced"`

	// Added is the number of new local records created
	Added int `json:"added"`

	// Updated is the number of existing local records refreshed
	Updated int `json:"updated"`

	// Removed is the number of local records marked unsynced
	Removed int `json:"removed"`

	// Errors holds per-workflow failure messages
	Errors []string `json:"errors,omitempty"`
}

// Synchronizer mirrors remote workflows into local storage
type Synchronizer struct {
	clients      ClientProvider
	integrations storage.IntegrationStore
	workflows    storage.WorkflowStore
	classifier   *Classifier
	logger       logging.Logger
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(clients ClientProvider, integrations storage.IntegrationStore, workflows storage.WorkflowStore, logger logging.Logger) *Synchronizer {
	return &Synchronizer{
		clients:      clients,
		integrations: integrations,
		workflows:    workflows,
		classifier:   NewClassifier(),
		logger:       logger,
	}
}

// SetClassifier replaces the trigger classifier
func (s *Synchronizer) SetClassifier(classifier *Classifier) {
	s.classifier = classifier
}

// Sync mirrors the remote workflow list for one integration. A failure to
// list workflows fails the pass; failures on individual workflows are
// accumulated and the remaining workflows still sync. Local records whose
// remote counterpart disappeared are marked unsynced, never deleted, so
// execution history stays intact. Running Sync twice against an unchanged
// instance yields the same local state.
func (s *Synchronizer) Sync(ctx context.Context, accountID, integrationID string) (*SyncResult, error) {
	integration, err := s.integrations.GetIntegration(accountID, integrationID)
	if err != nil {
		return nil, err
	}

	client, err := s.clients.ClientFor(accountID, integrationID)
	if err != nil {
		return nil, err
	}

	page, err := client.ListWorkflows(ctx, n8n.ListWorkflowsOptions{Limit: syncPageLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote workflows: %w", err)
	}

	result := &SyncResult{}
	seen := make(map[string]bool, len(page.Data))

	for _, remote := range page.Data {
		seen[remote.ID] = true

		record := storage.Workflow{
			AccountID:     accountID,
			IntegrationID: integrationID,
			RemoteID:      remote.ID,
			Name:          remote.Name,
			TriggerType:   s.classifier.Classify(remote),
			TriggerActive: remote.Active,
			IsSynced:      true,
		}

		if record.TriggerType == TriggerTypeWebhook {
			record.WebhookPath = s.lookupWebhookPath(ctx, client, remote.ID)
		}

		_, created, err := s.workflows.UpsertWorkflow(record)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", remote.Name, err))
			continue
		}

		result.Synced++
		if created {
			result.Added++
		} else {
			result.Updated++
		}
	}

	removed, err := s.markOrphans(integrationID, seen)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Removed = removed

	result.Success = len(result.Errors) == 0

	now := time.Now()
	integration.LastSyncedAt = &now
	integration.LastVerifiedAt = &now
	if err := s.integrations.SaveIntegration(integration); err != nil {
		s.logger.Error("failed to stamp sync time", logging.Field{Key: "integration_id", Value: integrationID}, logging.Field{Key: "error", Value: err.Error()})
	}

	s.logger.LogSyncEvent(integrationID, "sync_completed", map[string]interface{}{
		"synced":  result.Synced,
		"added":   result.Added,
		"updated": result.Updated,
		"removed": result.Removed,
		"errors":  len(result.Errors),
	})

	return result, nil
}

// lookupWebhookPath fetches the webhook path for a workflow. The lookup is
// best effort; a failure leaves the path empty and never fails the sync.
func (s *Synchronizer) lookupWebhookPath(ctx context.Context, client *n8n.Client, remoteID string) string {
	webhooks, err := client.GetWebhooks(ctx, remoteID)
	if err != nil {
		s.logger.Warn("webhook lookup failed",
			logging.Field{Key: "remote_id", Value: remoteID},
			logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	if len(webhooks) == 0 {
		return ""
	}

	return webhooks[0].Path
}

// markOrphans flags synced local records whose remote ID was not seen in
// this pass
func (s *Synchronizer) markOrphans(integrationID string, seen map[string]bool) (int, error) {
	local, err := s.workflows.ListWorkflowsByIntegration(integrationID)
	if err != nil {
		return 0, fmt.Errorf("failed to list local workflows: %w", err)
	}

	removed := 0
	for _, workflow := range local {
		if !workflow.IsSynced || seen[workflow.RemoteID] {
			continue
		}
		if err := s.workflows.MarkUnsynced(workflow.ID); err != nil {
			return removed, fmt.Errorf("failed to mark %s unsynced: %w", workflow.Name, err)
		}
		removed++
	}

	return removed, nil
}

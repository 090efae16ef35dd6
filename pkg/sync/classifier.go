// Package sync mirrors remote n8n workflows into local storage.
package sync

import (
	"strings"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/n8n"
)

// Trigger type values assigned during classification
const (
	TriggerTypeWebhook  = "webhook"
	TriggerTypeSchedule = "schedule"
	TriggerTypeEvent    = "event"
	TriggerTypeManual   = "manual"
)

// ClassificationRule maps a node type substring to a trigger type. Rules
// are evaluated in order against every node; the first match wins.
type ClassificationRule struct {
	// Substring matched case-insensitively against the node type
	Substring string

	// TriggerType assigned on a match
	TriggerType string
}

// DefaultClassificationRules is the rule table used when none is supplied.
// Order matters: a workflow containing both a webhook node and a schedule
// node classifies as webhook.
var DefaultClassificationRules = []ClassificationRule{
	{Substring: "webhook", TriggerType: TriggerTypeWebhook},
	{Substring: "schedule", TriggerType: TriggerTypeSchedule},
	{Substring: "cron", TriggerType: TriggerTypeSchedule},
	{Substring: "trigger", TriggerType: TriggerTypeEvent},
}

// Classifier assigns a trigger type to a workflow by inspecting its nodes
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier creates a classifier with the default rule table
func NewClassifier() *Classifier {
	return NewClassifierWithRules(DefaultClassificationRules)
}

// NewClassifierWithRules creates a classifier with a custom rule table
func NewClassifierWithRules(rules []ClassificationRule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the trigger type for a workflow. Rules are checked in
// order; a workflow with no matching node is manual.
func (c *Classifier) Classify(workflow n8n.Workflow) string {
	for _, rule := range c.rules {
		for _, node := range workflow.Nodes {
			if strings.Contains(strings.ToLower(node.Type), rule.Substring) {
				return rule.TriggerType
			}
		}
	}

	return TriggerTypeManual
}

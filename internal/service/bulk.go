package service

import (
	"context"

	"github.com/project-reconciler/internal/logging"
	"github.com/project-reconciler/internal/types"
)

// BulkFailure reports one payload that could not be upserted.
type BulkFailure struct {
	Index         int    `json:"index"`
	ProjectName   string `json:"project_name,omitempty"`
	ProjectTicker string `json:"project_ticker,omitempty"`
	Message       string `json:"error"`
	Err           error  `json:"-"`
}

// BulkResult lists the uids produced by a bulk upsert, in input order,
// and the items that failed.
type BulkResult struct {
	UIDs     []string      `json:"project_uids"`
	Failures []BulkFailure `json:"failed"`
}

// BulkUpsert upserts every payload against one source. A failing item is
// logged and skipped; it never stops the batch.
func (s *ReconciliationService) BulkUpsert(ctx context.Context, payloads []types.Document, sourceID string) *BulkResult {
	result := &BulkResult{
		UIDs:     make([]string, 0, len(payloads)),
		Failures: []BulkFailure{},
	}
	logger := logging.FromContext(ctx).WithField("source", sourceID)

	for i, payload := range payloads {
		uid, err := s.Upsert(ctx, payload, sourceID)
		if err == nil {
			result.UIDs = append(result.UIDs, uid)
			continue
		}

		failure := BulkFailure{
			Index:         i,
			ProjectName:   displayString(payload, types.FieldProjectName),
			ProjectTicker: displayString(payload, types.FieldProjectTicker),
			Message:       err.Error(),
			Err:           err,
		}
		result.Failures = append(result.Failures, failure)
		logger.WithFields(map[string]interface{}{
			"index":          i,
			"project_name":   failure.ProjectName,
			"project_ticker": failure.ProjectTicker,
		}).WithError(err).Error("bulk upsert item failed")
	}

	logger.WithFields(map[string]interface{}{
		"total":     len(payloads),
		"succeeded": len(result.UIDs),
		"failed":    len(result.Failures),
	}).Info("bulk upsert finished")
	return result
}

func displayString(doc types.Document, key string) string {
	if doc == nil {
		return ""
	}
	return doc.String(key)
}

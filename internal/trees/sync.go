package trees

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
)

const conflictReasonServerNewer = "Server version is newer"

const (
	messageValidationFailed = "Validation failed"
	messageDuplicateTree    = "Tree with this ID already exists"
	messageCreateFailed     = "Failed to register tree"
	messageUpdateFailed     = "Failed to update tree"
	messageLookupFailed     = "Failed to look up tree"
)

// SyncBatch is an ordered sequence of candidate records submitted by one
// offline client. LastSyncTimestamp is carried but does not participate in
// matching; reconciliation matches purely on the client-local id.
type SyncBatch struct {
	Trees             []TreeSubmission `json:"trees"`
	DeviceID          string           `json:"deviceId"`
	LastSyncTimestamp string           `json:"lastSyncTimestamp"`
}

// SyncSuccess reports a reconciled item with its assigned server identifiers.
type SyncSuccess struct {
	LocalID    string `json:"localId"`
	SequenceID int64  `json:"id"`
	UniqueID   string `json:"uniqueId"`
}

// SyncError reports an item that failed reconciliation.
type SyncError struct {
	LocalID string `json:"localId"`
	Message string `json:"error"`
}

// SyncConflict reports a losing writer together with the server-side record
// snapshot taken before any change, for client-side manual resolution.
type SyncConflict struct {
	LocalID    string      `json:"localId"`
	Reason     string      `json:"reason"`
	ServerData *TreeRecord `json:"serverData"`
}

// SyncResult buckets every submitted item into exactly one of the three
// disjoint outcomes and stamps batch completion.
type SyncResult struct {
	Succeeded       []SyncSuccess
	Errored         []SyncError
	Conflicted      []SyncConflict
	ServerTimestamp string
}

// SyncTrees reconciles an offline batch against the shared dataset. Items
// are processed in submission order and fault-isolated: one item's failure
// lands in the errored bucket and never aborts its siblings. Re-submitting
// an already-synced item takes the update path, which makes client retries
// idempotent.
func (s *Service) SyncTrees(ctx context.Context, batch SyncBatch, actor Actor) (SyncResult, error) {
	result := SyncResult{
		Succeeded:  make([]SyncSuccess, 0, len(batch.Trees)),
		Errored:    make([]SyncError, 0),
		Conflicted: make([]SyncConflict, 0),
	}

	for _, item := range batch.Trees {
		s.reconcileItem(ctx, item, actor, &result)
	}

	result.ServerTimestamp = FormatTimestamp(s.clock())
	return result, nil
}

func (s *Service) reconcileItem(ctx context.Context, item TreeSubmission, actor Actor, result *SyncResult) {
	existing, err := s.store.FindByUniqueID(ctx, item.LocalID)
	if err != nil {
		s.logError(opSyncTrees, "lookup_failed", err, zap.String("local_id", item.LocalID))
		result.Errored = append(result.Errored, SyncError{LocalID: item.LocalID, Message: messageLookupFailed})
		return
	}

	if existing == nil {
		record, err := s.CreateTree(ctx, item, actor)
		if err != nil {
			result.Errored = append(result.Errored, SyncError{
				LocalID: item.LocalID,
				Message: createFailureMessage(err),
			})
			return
		}
		result.Succeeded = append(result.Succeeded, SyncSuccess{
			LocalID:    item.LocalID,
			SequenceID: record.SequenceID,
			UniqueID:   record.UniqueID,
		})
		return
	}

	// Last-writer-wins: the incoming item is treated as happening now, so it
	// wins unless the stored edit carries a later timestamp.
	incoming := s.clock().UTC()
	serverEdit, parseErr := ParseTimestamp(existing.DataEdit)
	if parseErr == nil && !incoming.After(serverEdit) {
		snapshot := *existing
		result.Conflicted = append(result.Conflicted, SyncConflict{
			LocalID:    item.LocalID,
			Reason:     conflictReasonServerNewer,
			ServerData: &snapshot,
		})
		return
	}

	fields := item.descriptiveFields()
	fields["user_id"] = strconv.FormatInt(actor.ID, 10)
	fields["user_name"] = actor.DisplayName()
	fields["user_email"] = actor.Email
	fields["data_edit"] = FormatTimestamp(incoming)

	if err := s.store.UpdateFields(ctx, item.LocalID, fields); err != nil {
		s.logError(opSyncTrees, "update_failed", err, zap.String("local_id", item.LocalID))
		result.Errored = append(result.Errored, SyncError{LocalID: item.LocalID, Message: messageUpdateFailed})
		return
	}

	updated, err := s.store.FindByUniqueID(ctx, item.LocalID)
	if err != nil || updated == nil {
		s.logError(opSyncTrees, "reload_failed", err, zap.String("local_id", item.LocalID))
		result.Errored = append(result.Errored, SyncError{LocalID: item.LocalID, Message: messageUpdateFailed})
		return
	}

	result.Succeeded = append(result.Succeeded, SyncSuccess{
		LocalID:    item.LocalID,
		SequenceID: updated.SequenceID,
		UniqueID:   updated.UniqueID,
	})
}

func createFailureMessage(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return messageValidationFailed
	}
	if errors.Is(err, ErrDuplicateTree) {
		return messageDuplicateTree
	}
	return messageCreateFailed
}

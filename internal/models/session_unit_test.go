package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stayops/calsync-backend/internal/utils"
)

// Unit tests for session models - no external dependencies

func TestSessionBeforeCreate(t *testing.T) {
	session := &SyncSession{
		SyncType: SyncTypeAll,
	}

	session.BeforeCreate()

	utils.AssertNotEqual(t, uuid.Nil, session.ID, "ID should be generated")
	utils.AssertEqual(t, SessionStatusPending, session.Status, "Status should default to pending")
	utils.AssertEqual(t, TriggerManual, session.TriggeredBy, "TriggeredBy should default to manual")
	utils.AssertFalse(t, session.CreatedAt.IsZero(), "CreatedAt should be set")
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{"pending to in_progress", SessionStatusPending, SessionStatusInProgress, true},
		{"pending to error", SessionStatusPending, SessionStatusError, true},
		{"pending to completed", SessionStatusPending, SessionStatusCompleted, false},
		{"in_progress to completed", SessionStatusInProgress, SessionStatusCompleted, true},
		{"in_progress to error", SessionStatusInProgress, SessionStatusError, true},
		{"in_progress to pending", SessionStatusInProgress, SessionStatusPending, false},
		{"completed to in_progress", SessionStatusCompleted, SessionStatusInProgress, false},
		{"error to completed", SessionStatusError, SessionStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &SyncSession{Status: tt.from}
			utils.AssertEqual(t, tt.allowed, session.CanTransitionTo(tt.to), "Transition permission should match")
		})
	}
}

func TestSyncTotalsAdd(t *testing.T) {
	totals := SyncTotals{
		Listings:        2,
		EventsProcessed: 5,
		Added:           3,
		Unchanged:       2,
	}

	totals.Add(SyncTotals{
		Listings:          1,
		CompletedListings: 1,
		EventsProcessed:   4,
		FeedsProcessed:    2,
		Added:             1,
		Updated:           1,
		Deactivated:       1,
		Replaced:          1,
		Errors:            1,
	})

	utils.AssertEqual(t, 3, totals.Listings, "Listings should accumulate")
	utils.AssertEqual(t, 1, totals.CompletedListings, "CompletedListings should accumulate")
	utils.AssertEqual(t, 9, totals.EventsProcessed, "EventsProcessed should accumulate")
	utils.AssertEqual(t, 2, totals.FeedsProcessed, "FeedsProcessed should accumulate")
	utils.AssertEqual(t, 4, totals.Added, "Added should accumulate")
	utils.AssertEqual(t, 1, totals.Updated, "Updated should accumulate")
	utils.AssertEqual(t, 1, totals.Deactivated, "Deactivated should accumulate")
	utils.AssertEqual(t, 1, totals.Replaced, "Replaced should accumulate")
	utils.AssertEqual(t, 2, totals.Unchanged, "Unchanged should stay accumulated")
	utils.AssertEqual(t, 1, totals.Errors, "Errors should accumulate")
}

func TestSyncTotalsIsZero(t *testing.T) {
	utils.AssertTrue(t, SyncTotals{}.IsZero(), "Fresh totals should be zero")
	utils.AssertFalse(t, SyncTotals{Added: 1}.IsZero(), "Touched totals should not be zero")
}

func TestLogOperationValues(t *testing.T) {
	operations := []struct {
		op       LogOperation
		expected string
	}{
		{OpAdded, "added"},
		{OpUpdated, "updated"},
		{OpReplaced, "replaced"},
		{OpDeactivated, "deactivated"},
		{OpUnchanged, "unchanged"},
		{OpCheckoutTypeChanged, "checkout_type_changed"},
		{OpError, "error"},
	}

	for _, tt := range operations {
		utils.AssertEqual(t, tt.expected, string(tt.op), "Operation string should match")
	}
}

func TestJSONBSerialization(t *testing.T) {
	data := JSONB{
		"event_id": "evt-1",
		"checkin":  "2024-06-10",
		"nested": map[string]interface{}{
			"old_checkout_type": "open",
		},
	}

	value, err := data.Value()
	utils.AssertError(t, err, false, "Value() should not return error")

	jsonBytes, ok := value.([]byte)
	utils.AssertTrue(t, ok, "Value should be []byte")

	var scanned JSONB
	err = scanned.Scan(jsonBytes)
	utils.AssertError(t, err, false, "Scan() should not return error")

	utils.AssertEqual(t, "evt-1", scanned["event_id"], "String field should match")
	utils.AssertEqual(t, "2024-06-10", scanned["checkin"], "Date field should match")

	// Nil JSONB still produces a valid JSON object for NOT NULL columns
	var nilData JSONB
	value, err = nilData.Value()
	utils.AssertError(t, err, false, "Value() on nil should not return error")
	utils.AssertEqual(t, "{}", string(value.([]byte)), "Nil JSONB should serialize to empty object")

	err = nilData.Scan(nil)
	utils.AssertError(t, err, false, "Should handle nil value")
	if nilData != nil {
		t.Errorf("Expected nil but got %v. [Should be nil for nil input]", nilData)
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	e := &Event{Type: EventTypeCommandCalled, EntityType: EntityTypeUser, EntityID: "42"}
	assert.NoError(t, e.Validate())

	err := (&Event{Type: EventTypeCommandCalled, EntityID: " "}).Validate()
	require.Error(t, err)

	var verr *ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
	assert.Contains(t, err.Error(), "entity_type is required")
	assert.Contains(t, err.Error(), "entity_id is required")
}

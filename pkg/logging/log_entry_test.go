package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	ctxWithModel := WithModelID(ctx, "all-minilm")
	retrievedModelID, ok := GetModelID(ctxWithModel)
	assert.True(t, ok)
	assert.Equal(t, "all-minilm", retrievedModelID)

	// Unannotated context carries no model ID.
	_, ok = GetModelID(ctx)
	assert.False(t, ok)
}

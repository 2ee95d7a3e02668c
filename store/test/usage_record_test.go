package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/granary-ai/granary/store"
)

func TestUsageRecordStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	records := []*store.UsageRecord{
		{CreatedTs: 100, Kind: store.UsageKindEmbedding, Model: "text-embedding-3-small", PromptTokens: 120, LatencyMs: 80},
		{CreatedTs: 200, Kind: store.UsageKindEmbedding, Model: "text-embedding-3-small", PromptTokens: 40, LatencyMs: 30},
		{CreatedTs: 300, Kind: store.UsageKindGeneration, Model: "gpt-4o-mini", PromptTokens: 900, CompletionTokens: 150, LatencyMs: 1200},
	}
	for _, rec := range records {
		created, err := ts.CreateUsageRecord(ctx, rec)
		require.NoError(t, err)
		require.Greater(t, created.ID, int32(0))
	}

	// Newest first.
	list, err := ts.ListUsageRecords(ctx, &store.FindUsageRecord{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, store.UsageKindGeneration, list[0].Kind)
	require.Equal(t, 150, list[0].CompletionTokens)

	// Kind narrows to one call type.
	kind := store.UsageKindEmbedding
	list, err = ts.ListUsageRecords(ctx, &store.FindUsageRecord{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, rec := range list {
		require.Equal(t, store.UsageKindEmbedding, rec.Kind)
	}

	model := "gpt-4o-mini"
	list, err = ts.ListUsageRecords(ctx, &store.FindUsageRecord{Model: &model})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// AfterTs includes the boundary.
	after := int64(200)
	list, err = ts.ListUsageRecords(ctx, &store.FindUsageRecord{AfterTs: &after})
	require.NoError(t, err)
	require.Len(t, list, 2)

	limit := 1
	list, err = ts.ListUsageRecords(ctx, &store.FindUsageRecord{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(300), list[0].CreatedTs)
}

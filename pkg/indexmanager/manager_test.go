package indexmanager

import (
	"context"
	"testing"
	"time"

	"github.com/3leaps/gonimbus/pkg/indexstore"
	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := indexstore.OpenInMemory(context.Background(), "test-profile")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s.DB)
}

// Small bucket, single-page full index.
func TestUpdateFromListResponse_SmallBucketFullIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	resp := &provider.ListWithDelimiterResult{
		Objects: []provider.ObjectSummary{
			{Key: "a.txt", Size: 100, LastModified: time.Now()},
			{Key: "folder/b.txt", Size: 200, LastModified: time.Now()},
			{Key: "folder/c.txt", Size: 300, LastModified: time.Now()},
		},
		IsTruncated: false,
	}

	require.NoError(t, m.UpdateFromListResponse(ctx, "bucket1", "", resp))

	complete, err := m.IsBucketIndexComplete(ctx, "bucket1")
	require.NoError(t, err)
	require.True(t, complete)

	stats, err := m.GetBucketStats(ctx, "bucket1")
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.ObjectsCount)
	require.Equal(t, int64(600), stats.TotalSize)
}

func TestUpdateFromListResponse_NeverOverwritesExistingCommonPrefixCompleteness(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{
		Bucket: "bucket1", Prefix: "folder/", IsComplete: true,
	}))

	resp := &provider.ListWithDelimiterResult{
		CommonPrefixes: []string{"folder/"},
		IsTruncated:    false,
	}
	require.NoError(t, m.UpdateFromListResponse(ctx, "bucket1", "", resp))

	complete, err := indexstore.IsPrefixSelfComplete(ctx, m.db, "bucket1", "folder/")
	require.NoError(t, err)
	require.True(t, complete, "existing completeness must not be clobbered by discovery")
}

// Optimistic upload on a fully-complete bucket.
func TestAddObject_InvalidatesAncestorCompleteness(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.UpdateFromListResponse(ctx, "bucket1", "", &provider.ListWithDelimiterResult{IsTruncated: false}))
	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{Bucket: "bucket1", Prefix: "x/y/", IsComplete: true}))
	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{Bucket: "bucket1", Prefix: "x/", IsComplete: true}))

	require.NoError(t, m.AddObject(ctx, "bucket1", indexstore.Object{Bucket: "bucket1", Key: "x/y/z.bin", SizeBytes: 42}))

	for _, p := range []string{"x/y/", "x/", ""} {
		complete, err := indexstore.IsPrefixSelfComplete(ctx, m.db, "bucket1", p)
		require.NoError(t, err)
		require.False(t, complete, "prefix %q should be invalidated", p)
	}

	bucketComplete, err := m.IsBucketIndexComplete(ctx, "bucket1")
	require.NoError(t, err)
	require.False(t, bucketComplete)
}

// Unlike TestAddObject_InvalidatesAncestorCompleteness, no PrefixStatus rows
// exist for the new key's ancestors before the call: AddObject must create
// them (I1) rather than rely on MarkPrefixAndAncestorsIncomplete, which only
// updates existing rows.
func TestAddObject_CreatesPrefixStatusForUnknownAncestors(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AddObject(ctx, "bucket1", indexstore.Object{Bucket: "bucket1", Key: "x/y/z.bin", SizeBytes: 42}))

	for _, p := range []string{"x/y/", "x/", ""} {
		status, err := indexstore.GetPrefixStatus(ctx, m.db, "bucket1", p)
		require.NoError(t, err)
		require.NotNil(t, status, "prefix %q should now have a row", p)
		require.False(t, status.IsComplete)
	}
}

// Ghost sweep on a refresh that drops an object.
func TestSyncListingPage_GhostSweep(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertObjectsBatch(ctx, m.db, []indexstore.Object{
		{Bucket: "bucket1", Key: "a", ParentPrefix: "", LastIndexedAt: 1},
		{Bucket: "bucket1", Key: "b", ParentPrefix: "", LastIndexedAt: 1},
		{Bucket: "bucket1", Key: "c", ParentPrefix: "", LastIndexedAt: 1},
	}))

	resp := &provider.ListWithDelimiterResult{
		Objects: []provider.ObjectSummary{
			{Key: "a", Size: 1},
			{Key: "c", Size: 1},
		},
		IsTruncated: false,
	}
	require.NoError(t, m.SyncListingPage(ctx, "bucket1", "", resp))

	got, err := indexstore.GetObject(ctx, m.db, "bucket1", "b")
	require.NoError(t, err)
	require.Nil(t, got, "b should have been ghost-swept")

	complete, err := indexstore.IsPrefixSelfComplete(ctx, m.db, "bucket1", "")
	require.NoError(t, err)
	require.True(t, complete)

	stats, err := m.GetBucketStats(ctx, "bucket1")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.ObjectsCount, "swept ghost b must not remain counted")
	require.Equal(t, int64(2), stats.TotalSize)
}

func TestRemoveObject_MarksIncompleteEvenIfNotIndexed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{Bucket: "bucket1", Prefix: "a/", IsComplete: true}))

	require.NoError(t, m.RemoveObject(ctx, "bucket1", "a/never-indexed.txt"))

	complete, err := indexstore.IsPrefixSelfComplete(ctx, m.db, "bucket1", "a/")
	require.NoError(t, err)
	require.False(t, complete)
}

func TestRemoveFolder_DeletesObjectsAndStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertObjectsBatch(ctx, m.db, []indexstore.Object{
		{Bucket: "bucket1", Key: "a/1.txt", ParentPrefix: "a/", LastIndexedAt: 1},
		{Bucket: "bucket1", Key: "a/2.txt", ParentPrefix: "a/", LastIndexedAt: 1},
	}))
	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{Bucket: "bucket1", Prefix: "a/", IsComplete: true}))

	require.NoError(t, m.RemoveFolder(ctx, "bucket1", "a/"))

	got, err := indexstore.GetObject(ctx, m.db, "bucket1", "a/1.txt")
	require.NoError(t, err)
	require.Nil(t, got)

	status, err := indexstore.GetPrefixStatus(ctx, m.db, "bucket1", "a/")
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestCopyObjectCrossBucket_ReusesSourceMetadata(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertObject(ctx, m.db, indexstore.Object{
		Bucket: "src", Key: "a.txt", SizeBytes: 99, StorageClass: "GLACIER", LastIndexedAt: 1,
	}))

	require.NoError(t, m.CopyObjectCrossBucket(ctx, "src", "a.txt", "dst", "b.txt"))

	got, err := indexstore.GetObject(ctx, m.db, "dst", "b.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(99), got.SizeBytes)
	require.Equal(t, "GLACIER", got.StorageClass)
}

func TestIsPrefixDiscoveredOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, indexstore.UpsertPrefixStatus(ctx, m.db, indexstore.PrefixStatus{Bucket: "bucket1", Prefix: "a/", IsComplete: false}))

	discoveredOnly, err := m.IsPrefixDiscoveredOnly(ctx, "bucket1", "a/")
	require.NoError(t, err)
	require.True(t, discoveredOnly)

	require.NoError(t, m.AddObject(ctx, "bucket1", indexstore.Object{Bucket: "bucket1", Key: "a/x.txt", SizeBytes: 1}))
	_, _, err = indexstore.CalculatePrefixStats(ctx, m.db, "bucket1", "a/")
	require.NoError(t, err)
}

func seedSearchObjects(t *testing.T, m *Manager, bucket string) {
	t.Helper()
	ctx := context.Background()
	keys := []string{
		"reports/2024/jan.txt",
		"reports/2024/feb.txt",
		"reports/2024/summary.csv",
		"reports/2025/jan.txt",
		"images/logo.png",
		"images/banner-1.png",
		"images/banner-2.png",
	}
	for _, k := range keys {
		require.NoError(t, m.AddObject(ctx, bucket, indexstore.Object{Bucket: bucket, Key: k, SizeBytes: 1}))
	}
}

func TestSearchObjects_PlainQueryUsesSubstringMatch(t *testing.T) {
	m := newTestManager(t)
	seedSearchObjects(t, m, "bucket1")

	got, err := m.SearchObjects(context.Background(), "bucket1", "summary", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "reports/2024/summary.csv", got[0].Key)
}

func TestSearchObjects_GlobMatchesByExtensionAcrossPrefixes(t *testing.T) {
	m := newTestManager(t)
	seedSearchObjects(t, m, "bucket1")

	got, err := m.SearchObjects(context.Background(), "bucket1", "reports/**/*.txt", "", 10)
	require.NoError(t, err)

	keys := make([]string, 0, len(got))
	for _, obj := range got {
		keys = append(keys, obj.Key)
	}
	require.ElementsMatch(t, []string{
		"reports/2024/jan.txt", "reports/2024/feb.txt", "reports/2025/jan.txt",
	}, keys)
}

func TestSearchObjects_GlobCharacterClassAndScopedPrefix(t *testing.T) {
	m := newTestManager(t)
	seedSearchObjects(t, m, "bucket1")

	got, err := m.SearchObjects(context.Background(), "bucket1", "images/banner-[12].png", "images/", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = m.SearchObjects(context.Background(), "bucket1", "images/banner-[12].png", "reports/", 10)
	require.NoError(t, err)
	require.Empty(t, got, "a scoped prefix excludes candidates outside it")
}

func TestSearchObjects_GlobRespectsLimit(t *testing.T) {
	m := newTestManager(t)
	seedSearchObjects(t, m, "bucket1")

	got, err := m.SearchObjects(context.Background(), "bucket1", "images/*", "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSearchObjectsWithSizeRange_NarrowsGlobMatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.AddObject(ctx, "bucket1", indexstore.Object{Bucket: "bucket1", Key: "logs/small.log", SizeBytes: 100}))
	require.NoError(t, m.AddObject(ctx, "bucket1", indexstore.Object{Bucket: "bucket1", Key: "logs/big.log", SizeBytes: 50_000_000}))

	got, err := m.SearchObjectsWithSizeRange(ctx, "bucket1", "logs/*.log", "", "1MB", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "logs/big.log", got[0].Key)

	got, err = m.SearchObjectsWithSizeRange(ctx, "bucket1", "logs/*.log", "", "", "1KB", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "logs/small.log", got[0].Key)
}

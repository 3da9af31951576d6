package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/3leaps/gonimbus/pkg/provider"
)

// fakeResolver hands back a canned set of credentials for every profile
// id it has been told about, mirroring a test double for
// ProfileResolver rather than a real credential store.
type fakeResolver struct {
	creds map[string]ProfileCredentials
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{creds: make(map[string]ProfileCredentials)}
}

func (r *fakeResolver) add(profileID string) {
	r.creds[profileID] = ProfileCredentials{Region: "us-east-1"}
}

func (r *fakeResolver) Get(_ context.Context, profileID string) (ProfileCredentials, error) {
	c, ok := r.creds[profileID]
	if !ok {
		return ProfileCredentials{}, fmt.Errorf("%w: %s", ErrUnknownProfile, profileID)
	}
	return c, nil
}

// fakeLister is an in-memory stand-in for the S3 listing collaborator,
// letting core tests exercise StartInitialIndex/ListObjects without any
// network access.
type fakeLister struct {
	mu      sync.Mutex
	objects []provider.ObjectSummary
	closed  bool

	// listCalls/listDelimCalls count invocations for assertions on
	// whether the index was actually served from cache.
	listCalls       int
	listDelimCalls  int
	listWithDelimFn func(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error)
}

func newFakeLister(objects ...provider.ObjectSummary) *fakeLister {
	return &fakeLister{objects: objects}
}

func (l *fakeLister) List(_ context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	l.mu.Lock()
	l.listCalls++
	l.mu.Unlock()

	var matched []provider.ObjectSummary
	for _, o := range l.objects {
		if opts.Prefix == "" || hasPrefix(o.Key, opts.Prefix) {
			matched = append(matched, o)
		}
	}
	return &provider.ListResult{Objects: matched}, nil
}

func (l *fakeLister) ListWithDelimiter(ctx context.Context, opts provider.ListWithDelimiterOptions) (*provider.ListWithDelimiterResult, error) {
	l.mu.Lock()
	l.listDelimCalls++
	fn := l.listWithDelimFn
	l.mu.Unlock()
	if fn != nil {
		return fn(ctx, opts)
	}

	var objs []provider.ObjectSummary
	for _, o := range l.objects {
		if opts.Prefix == "" || hasPrefix(o.Key, opts.Prefix) {
			objs = append(objs, o)
		}
	}
	return &provider.ListWithDelimiterResult{Objects: objs}, nil
}

func (l *fakeLister) Head(_ context.Context, key string) (*provider.ObjectMeta, error) {
	for _, o := range l.objects {
		if o.Key == key {
			return &provider.ObjectMeta{ObjectSummary: o}, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (l *fakeLister) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// newTestCore constructs a Core wired to a fakeLister/fakeResolver pair
// and a temp-directory-backed data dir (index databases are opened via
// the real sqlite driver, not in-memory, since Core.handleFor always
// goes through indexstore.Open).
func newTestCore(t *testing.T, lst *fakeLister, profileID string) *Core {
	t.Helper()

	resolver := newFakeResolver()
	resolver.add(profileID)

	c, err := New(context.Background(), Options{
		DataDir:  t.TempDir(),
		Resolver: resolver,
		ListerFactory: func(ctx context.Context, profileID, _ string, resolver ProfileResolver) (lister, error) {
			if _, err := resolver.Get(ctx, profileID); err != nil {
				return nil, err
			}
			return lst, nil
		},
	})
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

package core

import (
	"context"
	"fmt"

	"github.com/3leaps/gonimbus/pkg/provider"
	"github.com/3leaps/gonimbus/pkg/provider/s3"
)

// ProfileCredentials is the subset of a profile's connection details the
// core needs to construct an S3 listing collaborator. The GUI's own
// profile store owns the durable secret material; this struct is just
// the narrow shape the core asks for.
type ProfileCredentials struct {
	Region          string
	Endpoint        string
	AWSProfile      string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// ProfileResolver resolves a profile id to connection credentials. The
// core never persists or caches credential material itself.
type ProfileResolver interface {
	Get(ctx context.Context, profileID string) (ProfileCredentials, error)
}

// lister is the subset of provider.Provider/DelimiterLister the core's
// operation surface needs: flat listing for the indexing driver and
// delimiter-mode listing for navigation-time reconciliation.
type lister interface {
	provider.Provider
	provider.DelimiterLister
}

// ListerFactory constructs the listing collaborator for a profile and
// bucket. The zero value (nil) makes Core use newS3Lister, the real
// AWS SDK-backed provider; tests substitute a fake.
type ListerFactory func(ctx context.Context, profileID, bucket string, resolver ProfileResolver) (lister, error)

// newS3Lister resolves profileID's credentials and constructs an S3
// provider scoped to bucket. This is the default ListerFactory.
func newS3Lister(ctx context.Context, profileID, bucket string, resolver ProfileResolver) (lister, error) {
	creds, err := resolver.Get(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("resolve profile %s: %w", profileID, err)
	}

	p, err := s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Region:          creds.Region,
		Endpoint:        creds.Endpoint,
		Profile:         creds.AWSProfile,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		ForcePathStyle:  creds.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("construct s3 provider for profile %s bucket %s: %w", profileID, bucket, err)
	}
	return p, nil
}

// newLister resolves profileID's credentials and constructs a listing
// collaborator scoped to bucket, via c.listerFactory. Every operation
// that talks to the remote store goes through this, so swapping the
// collaborator (a different provider, a test double) only touches this
// one seam.
func (c *Core) newLister(ctx context.Context, profileID, bucket string) (lister, error) {
	return c.listerFactory(ctx, profileID, bucket, c.resolver)
}

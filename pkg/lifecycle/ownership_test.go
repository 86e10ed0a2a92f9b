package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-logr/logr/testr"

	"github.com/johnlam90/aws-eni-manager/pkg/config"
)

func TestPolicyOwnedByUs(t *testing.T) {
	policy := Policy{Owner: "aws-eni-manager"}

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{
			name: "exact owner match",
			tags: map[string]string{TagCreatedBy: "aws-eni-manager"},
			want: true,
		},
		{
			name: "different owner",
			tags: map[string]string{TagCreatedBy: "someone-else"},
			want: false,
		},
		{
			name: "owner is a prefix, not a match",
			tags: map[string]string{TagCreatedBy: "aws-eni-manager-staging"},
			want: false,
		},
		{
			name: "no created-by tag",
			tags: map[string]string{"Name": "my-eni"},
			want: false,
		},
		{
			name: "nil tags",
			tags: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.OwnedByUs(tt.tags))
		})
	}
}

func TestPolicyWithinGrace(t *testing.T) {
	policy := Policy{GraceWindow: 60 * time.Second}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stamp := func(age time.Duration) map[string]string {
		return map[string]string{TagCreatedOn: now.Add(-age).Format(time.RFC3339)}
	}

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{
			name: "created just now",
			tags: stamp(0),
			want: true,
		},
		{
			name: "inside the window",
			tags: stamp(30 * time.Second),
			want: true,
		},
		{
			name: "exactly at the window",
			tags: stamp(60 * time.Second),
			want: false,
		},
		{
			name: "long past the window",
			tags: stamp(time.Hour),
			want: false,
		},
		{
			name: "unparsable timestamp is not protected",
			tags: map[string]string{TagCreatedOn: "yesterday-ish"},
			want: false,
		},
		{
			name: "absent timestamp is not protected",
			tags: map[string]string{TagCreatedBy: "aws-eni-manager"},
			want: false,
		},
		{
			name: "nil tags",
			tags: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.WithinGrace(tt.tags, now))
		})
	}
}

func TestOwnershipTags(t *testing.T) {
	cfg := config.Default()
	mgr := NewManager(cfg, testr.New(t))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tags := mgr.ownershipTags("i-0abc", now)
	assert.Equal(t, cfg.OwnerTag, tags[TagCreatedBy])
	assert.Equal(t, "i-0abc", tags[TagCreatedFrom])
	created, err := time.Parse(time.RFC3339, tags[TagCreatedOn])
	require.NoError(t, err)
	assert.True(t, created.Equal(now))

	// Elastic address allocations are account-scoped and carry no
	// created-from.
	allocTags := mgr.allocationTags(now)
	assert.Equal(t, cfg.OwnerTag, allocTags[TagCreatedBy])
	assert.NotContains(t, allocTags, TagCreatedFrom)
	assert.Len(t, allocTags, 2)

	// The creation policy and the cleanup policy agree on the owner.
	assert.True(t, mgr.policy().OwnedByUs(tags))
}

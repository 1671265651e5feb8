// Package signature identifies performance series.
//
// A series is identified by the features of the test that produced it: the
// test, suite and platform names, the build options and any extra options.
// Hash turns those features into a stable signature hash.
package signature

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/types"
)

// MaxParentDepth bounds the length of a chain of subtests. Resolve refuses a
// parent that would make the chain longer, or that would close a cycle.
const MaxParentDepth = 16

// FeatureTuple is the set of features that identify a series.
type FeatureTuple struct {
	Repository string `json:"repository"`
	Framework  string `json:"framework"`

	Test     string `json:"test"`
	Suite    string `json:"suite"`
	Platform string `json:"platform"`

	// Options are the build options, e.g. "opt", "pgo".
	Options []string `json:"options"`

	// ExtraOptions are test options, e.g. "e10s", "stylo".
	ExtraOptions []string `json:"extra_options,omitempty"`

	// ParentSignatureHash is set for subtests and is the signature hash of
	// the suite level series in the same repository and framework.
	ParentSignatureHash string `json:"parent_signature_hash,omitempty"`
}

// Validate returns an error wrapping perferrors.ErrValidation if a required
// feature is missing.
func (f FeatureTuple) Validate() error {
	if strings.TrimSpace(f.Repository) == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "repository must be supplied")
	}
	if strings.TrimSpace(f.Framework) == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "framework must be supplied")
	}
	if strings.TrimSpace(f.Suite) == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "suite must be supplied")
	}
	if strings.TrimSpace(f.Platform) == "" {
		return skerr.Wrapf(perferrors.ErrValidation, "platform must be supplied")
	}
	return nil
}

// Signature is the registry entry for a series.
type Signature struct {
	ID                   types.SignatureID  `json:"id"`
	RepositoryID         types.RepositoryID `json:"repository_id"`
	FrameworkID          types.FrameworkID  `json:"framework_id"`
	Hash                 string             `json:"signature_hash"`
	ExtraOptions         string             `json:"extra_options"`
	Test                 string             `json:"test"`
	Suite                string             `json:"suite"`
	Platform             string             `json:"platform"`
	OptionCollectionHash string             `json:"option_collection_hash"`

	// ParentID is nil unless this is a subtest.
	ParentID    *types.SignatureID `json:"parent_signature,omitempty"`
	HasSubtests bool               `json:"has_subtests"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Store is the signature registry.
type Store interface {
	// Resolve returns the signature for the features, creating or updating
	// it as needed.
	//
	// Fails with perferrors.ErrUnknownRepository or ErrUnknownFramework if
	// they don't exist, perferrors.ErrPendingParent if the parent hasn't been
	// seen yet, and perferrors.ErrSignatureCycle if the parent would create
	// a cycle.
	Resolve(ctx context.Context, f FeatureTuple) (*Signature, error)

	// Get returns a signature by id.
	Get(ctx context.Context, id types.SignatureID) (*Signature, error)

	// GetByHash returns the signature with the given hash in a repository
	// and framework.
	GetByHash(ctx context.Context, repositoryID types.RepositoryID, frameworkID types.FrameworkID, hash string) (*Signature, error)

	// Children returns the subtests of a signature.
	Children(ctx context.Context, id types.SignatureID) ([]*Signature, error)

	// OptionCollections maps every option collection hash to its options,
	// sorted alphabetically.
	OptionCollections(ctx context.Context) (map[string][]string, error)
}

// canonical trims every string, optionally lowercases it, and returns the
// sorted unique non-empty results.
func canonical(values []string, lower bool) []string {
	seen := map[string]bool{}
	ret := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		ret = append(ret, v)
	}
	sort.Strings(ret)
	return ret
}

// NormalizeOptions returns the options as they are stored in an option
// collection.
func NormalizeOptions(options []string) []string {
	return canonical(options, false)
}

// OptionCollectionHash returns the SHA-1 of the sorted, de-duplicated
// options joined by a single space.
func OptionCollectionHash(options []string) string {
	sum := sha1.Sum([]byte(strings.Join(NormalizeOptions(options), " ")))
	return hex.EncodeToString(sum[:])
}

// CanonicalExtraOptions returns the stored form of the extra options.
func CanonicalExtraOptions(extra []string) string {
	return strings.Join(canonical(extra, true), " ")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Hash returns the signature hash of the features. Repository and framework
// are not part of the hash, they are part of the key the hash is stored
// under. Neither is the parent, so a subtest keeps its hash if it moves.
func Hash(f FeatureTuple) string {
	h := sha1.New()
	for _, field := range []string{
		"test=" + normalize(f.Test),
		"suite=" + normalize(f.Suite),
		"platform=" + normalize(f.Platform),
		"options=" + OptionCollectionHash(f.Options),
		"extra=" + CanonicalExtraOptions(f.ExtraOptions),
	} {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

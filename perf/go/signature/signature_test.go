package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.treeherder.org/infra/perf/go/perferrors"
)

func tuple() FeatureTuple {
	return FeatureTuple{
		Repository:   "autoland",
		Framework:    "talos",
		Test:         "tp5o",
		Suite:        "tp5",
		Platform:     "linux64",
		Options:      []string{"opt"},
		ExtraOptions: []string{"e10s", "stylo"},
	}
}

func TestHash_SameFeatures_SameHash(t *testing.T) {
	assert.Equal(t, Hash(tuple()), Hash(tuple()))
	assert.Len(t, Hash(tuple()), 40)
}

func TestHash_NormalizesCaseWhitespaceAndOrder(t *testing.T) {
	f := tuple()
	f.Test = "  TP5O "
	f.Suite = "Tp5"
	f.Platform = "LINUX64"
	f.Options = []string{"opt", "opt", " "}
	f.ExtraOptions = []string{"STYLO", "e10s", "e10s"}
	assert.Equal(t, Hash(tuple()), Hash(f))
}

func TestHash_IgnoresRepositoryFrameworkAndParent(t *testing.T) {
	f := tuple()
	f.Repository = "mozilla-central"
	f.Framework = "awsy"
	f.ParentSignatureHash = "deadbeef"
	assert.Equal(t, Hash(tuple()), Hash(f))
}

func TestHash_DifferentFeature_DifferentHash(t *testing.T) {
	base := Hash(tuple())
	for name, mutate := range map[string]func(*FeatureTuple){
		"test":     func(f *FeatureTuple) { f.Test = "tp5n" },
		"suite":    func(f *FeatureTuple) { f.Suite = "tp6" },
		"platform": func(f *FeatureTuple) { f.Platform = "windows10-64" },
		"options":  func(f *FeatureTuple) { f.Options = []string{"pgo"} },
		"extra":    func(f *FeatureTuple) { f.ExtraOptions = []string{"e10s"} },
	} {
		t.Run(name, func(t *testing.T) {
			f := tuple()
			mutate(&f)
			assert.NotEqual(t, base, Hash(f))
		})
	}
}

func TestHash_FieldBoundariesAreUnambiguous(t *testing.T) {
	a := tuple()
	a.Test, a.Suite = "ab", "c"
	b := tuple()
	b.Test, b.Suite = "a", "bc"
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestOptionCollectionHash_KnownValue(t *testing.T) {
	// SHA-1 of "debug opt".
	assert.Equal(t, "6149c562c1057a99242b455aa3c3b6d064f253c8", OptionCollectionHash([]string{"opt", "debug"}))
	assert.Equal(t, OptionCollectionHash([]string{"debug", "opt"}), OptionCollectionHash([]string{"opt", "debug", "opt"}))
}

func TestCanonicalExtraOptions(t *testing.T) {
	assert.Equal(t, "e10s stylo", CanonicalExtraOptions([]string{" Stylo", "e10s", "E10S", ""}))
	assert.Equal(t, "", CanonicalExtraOptions(nil))
}

func TestNormalizeOptions_EmptyInput_EmptySlice(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeOptions(nil))
}

func TestValidate(t *testing.T) {
	require.NoError(t, tuple().Validate())
	f := tuple()
	f.Suite = " "
	require.ErrorIs(t, f.Validate(), perferrors.ErrValidation)
	f = tuple()
	f.Framework = ""
	require.ErrorIs(t, f.Validate(), perferrors.ErrValidation)
}

package metadata

import (
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarFieldDef(t *testing.T, f Field) ScalarField {
	t.Helper()
	for _, def := range ScalarFields {
		if def.Field == f {
			return def
		}
	}
	t.Fatalf("no scalar field definition for %s", f)
	return ScalarField{}
}

func setFieldDef(t *testing.T, f Field) SetField {
	t.Helper()
	for _, def := range SetFields {
		if def.Field == f {
			return def
		}
	}
	t.Fatalf("no set field definition for %s", f)
	return SetField{}
}

func TestResolveScalar(t *testing.T) {
	def := scalarFieldDef(t, FieldTitle)

	t.Run("picks the highest priority provider with a value", func(t *testing.T) {
		candidates := map[string]*CandidateMetadata{
			ProviderAmazon:    {Provider: ProviderAmazon, Title: pointerutil.String("Amazon Title")},
			ProviderGoodreads: {Provider: ProviderGoodreads, Title: pointerutil.String("Goodreads Title")},
		}

		v := ResolveScalar(def, FieldAuthority{ProviderGoodreads, ProviderAmazon}, candidates)
		require.NotNil(t, v)
		assert.Equal(t, "Goodreads Title", *v.(*string))
	})

	t.Run("falls through providers with absent or blank values", func(t *testing.T) {
		candidates := map[string]*CandidateMetadata{
			ProviderAmazon:      {Provider: ProviderAmazon, Title: pointerutil.String("   ")},
			ProviderGoodreads:   {Provider: ProviderGoodreads},
			ProviderGoogleBooks: {Provider: ProviderGoogleBooks, Title: pointerutil.String("Google Title")},
		}

		v := ResolveScalar(def, FieldAuthority{ProviderAmazon, ProviderGoodreads, ProviderGoogleBooks}, candidates)
		require.NotNil(t, v)
		assert.Equal(t, "Google Title", *v.(*string))
	})

	t.Run("skips providers that returned nothing at all", func(t *testing.T) {
		candidates := map[string]*CandidateMetadata{
			ProviderGoodreads: {Provider: ProviderGoodreads, Title: pointerutil.String("Goodreads Title")},
		}

		v := ResolveScalar(def, FieldAuthority{ProviderAmazon, ProviderGoodreads}, candidates)
		require.NotNil(t, v)
		assert.Equal(t, "Goodreads Title", *v.(*string))
	})

	t.Run("returns nil when no provider has a value", func(t *testing.T) {
		candidates := map[string]*CandidateMetadata{
			ProviderAmazon: {Provider: ProviderAmazon},
		}

		v := ResolveScalar(def, FieldAuthority{ProviderAmazon, ProviderGoodreads}, candidates)
		assert.Nil(t, v)
	})
}

func TestResolveSet(t *testing.T) {
	def := setFieldDef(t, FieldCategories)

	candidates := map[string]*CandidateMetadata{
		ProviderAmazon:    {Provider: ProviderAmazon, Categories: []string{"Fantasy", "Adventure"}},
		ProviderGoodreads: {Provider: ProviderGoodreads, Categories: []string{"Fantasy", "Epic"}},
	}

	t.Run("first match wins", func(t *testing.T) {
		values := ResolveSet(def, FieldAuthority{ProviderGoodreads, ProviderAmazon}, candidates)
		assert.Equal(t, []string{"Fantasy", "Epic"}, values)
	})

	t.Run("empty lists fall through", func(t *testing.T) {
		withEmpty := map[string]*CandidateMetadata{
			ProviderAmazon:    {Provider: ProviderAmazon, Categories: []string{"", "  "}},
			ProviderGoodreads: candidates[ProviderGoodreads],
		}

		values := ResolveSet(def, FieldAuthority{ProviderAmazon, ProviderGoodreads}, withEmpty)
		assert.Equal(t, []string{"Fantasy", "Epic"}, values)
	})

	t.Run("union preserves first seen order and dedupes", func(t *testing.T) {
		values := ResolveSetUnion(def, FieldAuthority{ProviderAmazon, ProviderGoodreads}, candidates)
		assert.Equal(t, []string{"Fantasy", "Adventure", "Epic"}, values)
	})
}

func TestResolve(t *testing.T) {
	published := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	candidates := map[string]*CandidateMetadata{
		ProviderAmazon: {
			Provider:     ProviderAmazon,
			Title:        pointerutil.String("Amazon Title"),
			Description:  pointerutil.String("Amazon description."),
			Tags:         []string{"bestseller"},
			ThumbnailURL: pointerutil.String("https://images.example.com/amazon.jpg"),
			Reviews: []CandidateReview{
				{Rating: pointerutil.Float64(5), Body: pointerutil.String("Loved it.")},
			},
		},
		ProviderGoodreads: {
			Provider:      ProviderGoodreads,
			Title:         pointerutil.String("Goodreads Title"),
			PublishedDate: &published,
			Tags:          []string{"fantasy", "bestseller"},
			Reviews: []CandidateReview{
				{Provider: ProviderGoodreads, Rating: pointerutil.Float64(4)},
			},
		},
	}

	t.Run("applies per field authority overrides", func(t *testing.T) {
		opts := &RefreshOptions{
			Providers: []string{ProviderAmazon, ProviderGoodreads},
			Authorities: map[Field]FieldAuthority{
				FieldTitle: {ProviderGoodreads, ProviderAmazon},
			},
		}

		resolved := Resolve(opts, candidates)
		require.NotNil(t, resolved.Title)
		assert.Equal(t, "Goodreads Title", *resolved.Title)
		require.NotNil(t, resolved.Description)
		assert.Equal(t, "Amazon description.", *resolved.Description)
		require.NotNil(t, resolved.PublishedDate)
		assert.True(t, published.Equal(*resolved.PublishedDate))
	})

	t.Run("disabled fields are left absent", func(t *testing.T) {
		opts := &RefreshOptions{
			Providers: []string{ProviderAmazon, ProviderGoodreads},
			Fields:    map[Field]bool{FieldTitle: true},
		}

		resolved := Resolve(opts, candidates)
		require.NotNil(t, resolved.Title)
		assert.Nil(t, resolved.Description)
		assert.Nil(t, resolved.PublishedDate)
		assert.Empty(t, resolved.Tags)
	})

	t.Run("merge unions tags across providers", func(t *testing.T) {
		opts := &RefreshOptions{
			Providers: []string{ProviderAmazon, ProviderGoodreads},
			MergeTags: true,
		}

		resolved := Resolve(opts, candidates)
		assert.Equal(t, []string{"bestseller", "fantasy"}, resolved.Tags)
	})

	t.Run("reviews are gathered from every provider with provider filled in", func(t *testing.T) {
		opts := &RefreshOptions{Providers: []string{ProviderAmazon, ProviderGoodreads}}

		resolved := Resolve(opts, candidates)
		require.Len(t, resolved.Reviews, 2)
		assert.Equal(t, ProviderAmazon, resolved.Reviews[0].Provider)
		assert.Equal(t, ProviderGoodreads, resolved.Reviews[1].Provider)
	})

	t.Run("thumbnail follows cover authority only when covers are refreshed", func(t *testing.T) {
		opts := &RefreshOptions{Providers: []string{ProviderAmazon, ProviderGoodreads}}

		resolved := Resolve(opts, candidates)
		assert.Nil(t, resolved.ThumbnailURL)

		opts.RefreshCovers = true
		resolved = Resolve(opts, candidates)
		require.NotNil(t, resolved.ThumbnailURL)
		assert.Equal(t, "https://images.example.com/amazon.jpg", *resolved.ThumbnailURL)
	})
}

func TestRefreshOptionsAuthorityFor(t *testing.T) {
	t.Run("falls back through default authority and providers", func(t *testing.T) {
		opts := &RefreshOptions{
			Providers:        []string{ProviderHardcover, ProviderAmazon},
			DefaultAuthority: FieldAuthority{ProviderGoodreads},
			Authorities: map[Field]FieldAuthority{
				FieldTitle: {ProviderAmazon},
			},
		}

		assert.Equal(t, FieldAuthority{ProviderAmazon}, opts.AuthorityFor(FieldTitle))
		assert.Equal(t, FieldAuthority{ProviderGoodreads}, opts.AuthorityFor(FieldDescription))

		opts.DefaultAuthority = nil
		assert.Equal(t, FieldAuthority{ProviderHardcover, ProviderAmazon}, opts.AuthorityFor(FieldDescription))

		opts.Providers = nil
		assert.Equal(t, DefaultProviderOrder, opts.AuthorityFor(FieldDescription))
	})

	t.Run("truncates long authority lists", func(t *testing.T) {
		opts := &RefreshOptions{
			DefaultAuthority: FieldAuthority{
				ProviderAmazon, ProviderGoodreads, ProviderGoogleBooks, ProviderHardcover, "extra",
			},
		}

		authority := opts.AuthorityFor(FieldTitle)
		assert.Len(t, authority, MaxAuthorityProviders)
		assert.NotContains(t, authority, "extra")
	})
}

func TestRefreshOptionsProviderSet(t *testing.T) {
	opts := &RefreshOptions{Providers: []string{ProviderGoodreads, ProviderAmazon, ProviderGoodreads}}
	assert.Equal(t, []string{ProviderGoodreads, ProviderAmazon}, opts.ProviderSet())
	assert.True(t, opts.IncludesRateLimitedProvider())

	opts = &RefreshOptions{Providers: []string{ProviderGoodreads, ProviderHardcover}}
	assert.False(t, opts.IncludesRateLimitedProvider())

	opts = &RefreshOptions{}
	assert.Equal(t, []string(DefaultProviderOrder), opts.ProviderSet())
}

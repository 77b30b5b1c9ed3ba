package institutions

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/cache/memory"
)

type stubAdapter struct {
	banking.Adapter
	tag          banking.Provider
	institutions []banking.Institution
	err          error
	calls        int
}

func (s *stubAdapter) Provider() banking.Provider { return s.tag }

func (s *stubAdapter) GetInstitutions(ctx context.Context, req banking.InstitutionsRequest) ([]banking.Institution, error) {
	s.calls++
	return s.institutions, s.err
}

type fakeLogoStore struct {
	objects map[string][]byte
}

func (f *fakeLogoStore) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := f.objects[id]
	return ok, nil
}

func (f *fakeLogoStore) Put(ctx context.Context, id string, data []byte, contentType string) error {
	f.objects[id] = data
	return nil
}

func (f *fakeLogoStore) URL(id string) string {
	return "https://logos.example.com/" + id + ".png"
}

func newTestDirectory(t *testing.T, adapters map[banking.Provider]banking.Adapter) *Directory {
	t.Helper()
	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)
	return New(adapters, store, nil, logrus.New(), nil)
}

func TestList_MergesAndSortsAcrossProviders(t *testing.T) {
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{
		banking.ProviderGoCardless: &stubAdapter{
			tag: banking.ProviderGoCardless,
			institutions: []banking.Institution{
				{ID: "gc-2", Name: "Zenith Bank", Provider: banking.ProviderGoCardless},
				{ID: "gc-1", Name: "Alpha Bank", Provider: banking.ProviderGoCardless},
			},
		},
		banking.ProviderPlaid: &stubAdapter{
			tag: banking.ProviderPlaid,
			institutions: []banking.Institution{
				{ID: "pl-1", Name: "Midtown Credit Union", Provider: banking.ProviderPlaid},
			},
		},
	})

	list, errs := d.List(context.Background(), "")
	assert.Empty(t, errs)
	assert.Len(t, list, 3)
	assert.Equal(t, "Alpha Bank", list[0].Name)
	assert.Equal(t, "Midtown Credit Union", list[1].Name)
	assert.Equal(t, "Zenith Bank", list[2].Name)
}

func TestList_PartialFailureKeepsHealthyVendors(t *testing.T) {
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{
		banking.ProviderTeller: &stubAdapter{
			tag: banking.ProviderTeller,
			institutions: []banking.Institution{
				{ID: "te-1", Name: "First National", Provider: banking.ProviderTeller},
			},
		},
		banking.ProviderPlaid: &stubAdapter{
			tag: banking.ProviderPlaid,
			err: errors.New("upstream 500"),
		},
	})

	list, errs := d.List(context.Background(), "")
	assert.Len(t, list, 1)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "plaid")
}

func TestList_DedupesProviderIDPairs(t *testing.T) {
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{
		banking.ProviderGoCardless: &stubAdapter{
			tag: banking.ProviderGoCardless,
			institutions: []banking.Institution{
				{ID: "gc-1", Name: "Alpha Bank", Provider: banking.ProviderGoCardless},
				{ID: "gc-1", Name: "Alpha Bank", Provider: banking.ProviderGoCardless},
			},
		},
	})

	list, errs := d.List(context.Background(), "")
	assert.Empty(t, errs)
	assert.Len(t, list, 1)
}

func TestList_CompleteRefreshIsCached(t *testing.T) {
	adapter := &stubAdapter{
		tag: banking.ProviderTeller,
		institutions: []banking.Institution{
			{ID: "te-1", Name: "First National", Provider: banking.ProviderTeller},
		},
	}
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{banking.ProviderTeller: adapter})

	_, errs := d.List(context.Background(), "")
	assert.Empty(t, errs)
	_, errs = d.List(context.Background(), "")
	assert.Empty(t, errs)

	assert.Equal(t, 1, adapter.calls)
}

func TestList_PartialRefreshNotCached(t *testing.T) {
	healthy := &stubAdapter{
		tag: banking.ProviderTeller,
		institutions: []banking.Institution{
			{ID: "te-1", Name: "First National", Provider: banking.ProviderTeller},
		},
	}
	failing := &stubAdapter{tag: banking.ProviderPlaid, err: errors.New("down")}
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{
		banking.ProviderTeller: healthy,
		banking.ProviderPlaid:  failing,
	})

	d.List(context.Background(), "")
	d.List(context.Background(), "")

	assert.Equal(t, 2, healthy.calls)
}

func TestList_CountryFilterHasOwnCacheKey(t *testing.T) {
	adapter := &stubAdapter{
		tag: banking.ProviderGoCardless,
		institutions: []banking.Institution{
			{ID: "gc-1", Name: "Alpha Bank", Provider: banking.ProviderGoCardless, Country: "DE"},
		},
	}
	d := newTestDirectory(t, map[banking.Provider]banking.Adapter{banking.ProviderGoCardless: adapter})

	d.List(context.Background(), "DE")
	d.List(context.Background(), "GB")

	assert.Equal(t, 2, adapter.calls)
}

func TestList_LogosRewrittenToStore(t *testing.T) {
	adapter := &stubAdapter{
		tag: banking.ProviderPlaid,
		institutions: []banking.Institution{
			// Plaid inlines logos as base64 PNG bytes.
			{ID: "pl-1", Name: "Midtown Credit Union", Provider: banking.ProviderPlaid, Logo: "aW1hZ2UtYnl0ZXM="},
		},
	}
	store := memory.New(memory.Config{})
	t.Cleanup(store.Close)
	logos := &fakeLogoStore{objects: map[string][]byte{}}
	d := New(map[banking.Provider]banking.Adapter{banking.ProviderPlaid: adapter}, store, logos, logrus.New(), nil)

	list, errs := d.List(context.Background(), "")
	assert.Empty(t, errs)
	assert.Len(t, list, 1)
	assert.Equal(t, "https://logos.example.com/pl-1.png", list[0].Logo)
	assert.Equal(t, []byte("image-bytes"), logos.objects["pl-1"])
}

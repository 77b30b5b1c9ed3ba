// Package institutions aggregates institution metadata from every vendor
// into one directory: fan-out fetch, merge, logo resolution and a
// multi-hour response cache. A failing vendor contributes to the error
// list without blocking the others' results.
package institutions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carson-networks/bank-bridge/internal/banking"
	"github.com/carson-networks/bank-bridge/internal/cache"
	"github.com/carson-networks/bank-bridge/internal/logostore"
	"github.com/carson-networks/bank-bridge/internal/metrics"
)

const (
	// cacheTTL keeps the merged directory for several hours; entries are
	// replaced wholesale on refresh, never mutated.
	cacheTTL = 6 * time.Hour

	cacheKeyPrefix = "institutions"
)

// Directory merges institution listings across adapters.
type Directory struct {
	adapters map[banking.Provider]banking.Adapter
	cache    cache.Store
	logos    logostore.Store
	http     *http.Client
	log      *logrus.Logger
	metrics  *metrics.Collector
}

// New builds a Directory. logos may be nil, in which case vendor logo
// URLs pass through untouched.
func New(adapters map[banking.Provider]banking.Adapter, store cache.Store, logos logostore.Store, log *logrus.Logger, collector *metrics.Collector) *Directory {
	return &Directory{
		adapters: adapters,
		cache:    store,
		logos:    logos,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
		metrics:  collector,
	}
}

func cacheKey(countryCode string) string {
	if countryCode == "" {
		return cacheKeyPrefix + ":all"
	}
	return cacheKeyPrefix + ":" + countryCode
}

// List returns the merged institution directory, optionally filtered by
// country. Partial vendor failure returns the successful vendors'
// results plus the per-vendor errors; only total failure is an error.
func (d *Directory) List(ctx context.Context, countryCode string) ([]banking.Institution, []error) {
	key := cacheKey(countryCode)
	if raw, err := d.cache.Get(ctx, key); err == nil {
		var cached []banking.Institution
		if err := json.Unmarshal(raw, &cached); err == nil {
			if d.metrics != nil {
				d.metrics.RecordCacheHit(cacheKeyPrefix)
			}
			return cached, nil
		}
	}
	if d.metrics != nil {
		d.metrics.RecordCacheMiss(cacheKeyPrefix)
	}

	type fetched struct {
		tag          banking.Provider
		institutions []banking.Institution
		err          error
	}

	results := make(chan fetched, len(d.adapters))
	var wg sync.WaitGroup
	for tag, adapter := range d.adapters {
		wg.Add(1)
		go func(tag banking.Provider, adapter banking.Adapter) {
			defer wg.Done()
			list, err := adapter.GetInstitutions(ctx, banking.InstitutionsRequest{CountryCode: countryCode})
			results <- fetched{tag: tag, institutions: list, err: err}
		}(tag, adapter)
	}
	wg.Wait()
	close(results)

	var merged []banking.Institution
	var errs []error
	for f := range results {
		if f.err != nil {
			d.log.WithError(f.err).Warnf("Directory.List.%v failed", f.tag)
			errs = append(errs, fmt.Errorf("%s: %w", f.tag, f.err))
			continue
		}
		merged = append(merged, f.institutions...)
	}

	merged = dedupe(merged)
	d.resolveLogos(ctx, merged)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Name != merged[j].Name {
			return merged[i].Name < merged[j].Name
		}
		return merged[i].ID < merged[j].ID
	})

	// Cache only complete refreshes so a partial outage never pins a
	// partial directory for hours.
	if len(errs) == 0 && len(merged) > 0 {
		if raw, err := json.Marshal(merged); err == nil {
			_ = d.cache.Set(ctx, key, raw, cacheTTL)
		}
	}
	return merged, errs
}

// dedupe drops duplicate provider+id pairs, keeping first occurrence.
func dedupe(list []banking.Institution) []banking.Institution {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, inst := range list {
		key := string(inst.Provider) + ":" + inst.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inst)
	}
	return out
}

// resolveLogos rewrites logo references to the object store, uploading
// each vendor logo once. Failures are logged and leave the vendor URL in
// place; logo resolution is never worth failing the listing.
func (d *Directory) resolveLogos(ctx context.Context, list []banking.Institution) {
	if d.logos == nil {
		return
	}
	for i := range list {
		inst := &list[i]
		if inst.Logo == "" {
			continue
		}

		exists, err := d.logos.Exists(ctx, inst.ID)
		if err != nil {
			d.log.WithError(err).WithField("institution", inst.ID).Warn("Directory.resolveLogos.exists check failed")
			continue
		}
		if !exists {
			if err := d.storeLogo(ctx, inst.ID, inst.Logo); err != nil {
				d.log.WithError(err).WithField("institution", inst.ID).Warn("Directory.resolveLogos.store failed")
				continue
			}
		}
		inst.Logo = d.logos.URL(inst.ID)
	}
}

func (d *Directory) storeLogo(ctx context.Context, id, logo string) error {
	// Plaid inlines logos as base64 rather than linking them.
	if !strings.HasPrefix(logo, "http") {
		data, err := base64.StdEncoding.DecodeString(logo)
		if err != nil {
			return fmt.Errorf("logo decode %q: %w", id, err)
		}
		return d.logos.Put(ctx, id, data, "image/png")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logo, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logo fetch %q: http %d", logo, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return d.logos.Put(ctx, id, data, contentType)
}

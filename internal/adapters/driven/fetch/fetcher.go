package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// versionLayout formats versions derived from file modification times.
const versionLayout = "20060102150405"

// Ensure Fetcher implements the interfaces.
var (
	_ driven.EntityFetcher  = (*Fetcher)(nil)
	_ driven.CatalogFetcher = (*Fetcher)(nil)
)

// Fetcher reads catalogs, entity dumps and delta files.
type Fetcher struct {
	settings  domain.FetchSettings
	client    *http.Client
	limiter   *RateLimiter
	userAgent string

	mu sync.Mutex
	s3 *minio.Client
}

// New creates a fetcher from fetch settings.
func New(settings domain.FetchSettings) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout := settings.Timeout.Std(); timeout > 0 {
		// Bodies can be large dumps; only connection setup is bounded.
		transport.ResponseHeaderTimeout = timeout
		transport.TLSHandshakeTimeout = timeout
	}
	return &Fetcher{
		settings:  settings,
		client:    &http.Client{Transport: transport},
		limiter:   NewRateLimiter(settings.Rate, settings.Burst),
		userAgent: settings.UserAgent,
	}
}

// deltaIndex is the document listing published delta files.
type deltaIndex struct {
	Versions map[string]string `json:"versions"`
}

// Plan decides between a full and a delta load.
func (f *Fetcher) Plan(ctx context.Context, ds domain.Dataset, baseVersion string, deltas bool) (domain.FetchPlan, error) {
	full := domain.FetchPlan{
		Mode:          domain.FetchFull,
		BaseVersion:   baseVersion,
		TargetVersion: ds.Version,
	}
	if !deltas || baseVersion == "" || ds.DeltaURL == "" {
		return full, nil
	}
	if ds.Version != "" && ds.Version <= baseVersion {
		return full, nil
	}

	var index deltaIndex
	if err := f.getJSON(ctx, ds.DeltaURL, &index); err != nil {
		if ctx.Err() != nil {
			return domain.FetchPlan{}, ctx.Err()
		}
		logger.Warn("delta index of %s unavailable, loading in full: %v", ds.Name, err)
		return full, nil
	}

	versions := make([]string, 0, len(index.Versions))
	for v := range index.Versions {
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return full, nil
	}
	sort.Strings(versions)

	// A base version without changes has no delta of its own, so only
	// bases older than the whole window are uncovered.
	if baseVersion < versions[0] {
		logger.Warn("indexed version %s of %s is older than the delta window (%s)", baseVersion, ds.Name, versions[0])
		return full, nil
	}

	// Deltas that stop short of the catalog version would leave the
	// dataset stale on every run.
	if newest := versions[len(versions)-1]; ds.Version != "" && newest < ds.Version {
		logger.Warn("delta index of %s ends at %s, behind version %s, loading in full", ds.Name, newest, ds.Version)
		return full, nil
	}

	plan := domain.FetchPlan{
		Mode:          domain.FetchDelta,
		BaseVersion:   baseVersion,
		TargetVersion: versions[len(versions)-1],
	}
	for _, v := range versions {
		if v <= baseVersion {
			continue
		}
		plan.Deltas = append(plan.Deltas, domain.DeltaRef{
			Version: v,
			URL:     resolveRef(ds.DeltaURL, index.Versions[v]),
		})
	}
	return plan, nil
}

// Fetch streams the operations of a plan.
func (f *Fetcher) Fetch(ctx context.Context, ds domain.Dataset, plan domain.FetchPlan) (<-chan domain.EntityOp, <-chan error) {
	opsChan := make(chan domain.EntityOp)
	errsChan := make(chan error, 1)

	go func() {
		defer close(opsChan)
		defer close(errsChan)

		emit := func(op domain.EntityOp) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case opsChan <- op:
				return nil
			}
		}

		count, err := f.run(ctx, ds, plan, emit)
		if err != nil {
			errsChan <- err
			return
		}

		errsChan <- &driven.FetchComplete{
			Version: plan.TargetVersion,
			Count:   count,
		}
	}()

	return opsChan, errsChan
}

type emitFunc func(domain.EntityOp) error

func (f *Fetcher) run(ctx context.Context, ds domain.Dataset, plan domain.FetchPlan, emit emitFunc) (int, error) {
	if plan.Mode == domain.FetchDelta {
		total := 0
		for _, d := range plan.Deltas {
			n, err := f.streamLines(ctx, d.URL, emit)
			total += n
			if err != nil {
				return total, err
			}
			logger.Debug("%s: applied delta %s (%d operations)", ds.Name, d.Version, n)
		}
		return total, nil
	}

	if ds.EntitiesURL == "" {
		return 0, domain.ConfigErrorf("dataset %s has no entities resource", ds.Name)
	}
	switch ds.Format {
	case "", domain.FormatNDJSON:
		return f.streamLines(ctx, ds.EntitiesURL, emit)
	case domain.FormatPaged:
		return f.streamPages(ctx, ds.EntitiesURL, emit)
	default:
		return 0, domain.ConfigErrorf("dataset %s: unknown format %q", ds.Name, ds.Format)
	}
}

// streamLines emits one operation per non-blank line.
func (f *Fetcher) streamLines(ctx context.Context, location string, emit emitFunc) (int, error) {
	s, err := f.open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	reader := bufio.NewReaderSize(s, 64*1024)
	count := 0
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			op, err := decodeOp(line)
			if err != nil {
				return count, fmt.Errorf("%s line %d: %w", location, lineNo, err)
			}
			if err := emit(op); err != nil {
				return count, err
			}
			count++
		}
		if errors.Is(readErr, io.EOF) {
			return count, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			return count, &domain.FetchError{URL: location, Err: readErr}
		}
	}
}

// page is one response of a paged source.
type page struct {
	Results []json.RawMessage `json:"results"`
	Next    string            `json:"next"`
}

// streamPages follows next links until a page has none.
func (f *Fetcher) streamPages(ctx context.Context, location string, emit emitFunc) (int, error) {
	count := 0
	seen := make(map[string]bool)
	for next := location; next != ""; {
		if seen[next] {
			return count, fmt.Errorf("%w: page loop at %s", domain.ErrInvalidInput, next)
		}
		seen[next] = true

		s, err := f.open(ctx, next)
		if err != nil {
			return count, err
		}
		var p page
		err = json.NewDecoder(s).Decode(&p)
		s.Close()
		if err != nil {
			return count, &domain.FetchError{URL: next, Err: fmt.Errorf("decode page: %w", err)}
		}

		for i, raw := range p.Results {
			op, err := decodeOp(raw)
			if err != nil {
				return count, fmt.Errorf("%s result %d: %w", next, i, err)
			}
			if err := emit(op); err != nil {
				return count, err
			}
			count++
		}

		ref := p.Next
		if ref == "" && s.header != nil {
			ref = ParseNextLink(s.header.Get("Link"))
		}
		next = resolveRef(next, ref)
	}
	return count, nil
}

// record is either a bare entity or an {"op", "entity"} operation.
type record struct {
	domain.Entity
	Op    domain.EntityOpType `json:"op"`
	Inner *domain.Entity      `json:"entity"`
}

func decodeOp(data []byte) (domain.EntityOp, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.EntityOp{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if r.Op == "" {
		if r.ID == "" {
			return domain.EntityOp{}, fmt.Errorf("%w: entity without id", domain.ErrInvalidInput)
		}
		return domain.EntityOp{Op: domain.OpAdd, Entity: r.Entity}, nil
	}

	switch r.Op {
	case domain.OpAdd, domain.OpModify, domain.OpDelete:
	default:
		return domain.EntityOp{}, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, r.Op)
	}
	if r.Inner == nil || r.Inner.ID == "" {
		return domain.EntityOp{}, fmt.Errorf("%w: %s operation without entity id", domain.ErrInvalidInput, r.Op)
	}
	return domain.EntityOp{Op: r.Op, Entity: *r.Inner}, nil
}

// FetchCatalog downloads and decodes a catalog index.
func (f *Fetcher) FetchCatalog(ctx context.Context, location string) (*domain.CatalogIndex, error) {
	var index domain.CatalogIndex
	if err := f.getJSON(ctx, location, &index); err != nil {
		return nil, err
	}
	for i := range index.Datasets {
		entry := &index.Datasets[i]
		entry.DeltaURL = resolveRef(location, entry.DeltaURL)
		for j := range entry.Resources {
			entry.Resources[j].URL = resolveRef(location, entry.Resources[j].URL)
		}
	}
	return &index, nil
}

func (f *Fetcher) getJSON(ctx context.Context, location string, v any) error {
	s, err := f.open(ctx, location)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := json.NewDecoder(s).Decode(v); err != nil {
		return &domain.FetchError{URL: location, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// ResourceVersion returns the modification time of a local resource.
func (f *Fetcher) ResourceVersion(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil {
		switch u.Scheme {
		case "":
		case "file":
			p = u.Path
		default:
			return ""
		}
	}
	info, err := os.Stat(p)
	if err != nil {
		return ""
	}
	return info.ModTime().UTC().Format(versionLayout)
}

package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
)

// Ensure ManifestLoader implements the interface.
var _ driven.ManifestLoader = (*ManifestLoader)(nil)

// maxManifestSize bounds remote manifest downloads.
const maxManifestSize = 8 << 20

// ManifestLoader reads TOML or YAML manifests from a path or URL.
// The format is chosen by file extension; .json is read as YAML.
type ManifestLoader struct {
	client *http.Client
}

// NewManifestLoader creates a manifest loader.
func NewManifestLoader(timeout time.Duration) *ManifestLoader {
	return &ManifestLoader{client: &http.Client{Timeout: timeout}}
}

// LoadManifest reads and decodes the manifest at location.
func (l *ManifestLoader) LoadManifest(ctx context.Context, location string) (*domain.Manifest, error) {
	data, name, err := l.read(ctx, location)
	if err != nil {
		return nil, err
	}

	var m domain.Manifest
	switch strings.ToLower(path.Ext(name)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, domain.ConfigErrorf("manifest %s: %s", location, describeTOMLError(err))
		}
	case ".yaml", ".yml", ".json":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, domain.ConfigErrorf("manifest %s: %v", location, err)
		}
	default:
		return nil, domain.ConfigErrorf("manifest %s: unknown format %q (use .toml, .yaml or .yml)", location, path.Ext(name))
	}

	m.Location = location
	for i := range m.Datasets {
		m.Datasets[i].Origin = location
	}
	return &m, nil
}

// read returns the manifest bytes and the name used to pick the format.
func (l *ManifestLoader) read(ctx context.Context, location string) ([]byte, string, error) {
	u, err := url.Parse(location)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		p := location
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, "", domain.ConfigErrorf("read manifest: %v", err)
		}
		return data, p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, "", domain.ConfigErrorf("manifest request: %v", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", &domain.FetchError{URL: location, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &domain.FetchError{URL: location, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, "", &domain.FetchError{URL: location, Err: err}
	}
	if len(data) > maxManifestSize {
		return nil, "", domain.ConfigErrorf("manifest %s exceeds %d bytes", location, maxManifestSize)
	}
	return data, u.Path, nil
}

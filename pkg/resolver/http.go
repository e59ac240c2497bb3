// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
)

// MaxManifestSize bounds the body read from a manifest server.
const MaxManifestSize = 1 << 20

// HTTP fetches manifests over http and https.
type HTTP struct {
	client *http.Client
	logger *zap.SugaredLogger
}

// NewHTTP uses client for every request. The client's Timeout bounds a fetch.
func NewHTTP(client *http.Client, logger *zap.SugaredLogger) *HTTP {
	return &HTTP{client: client, logger: logger}
}

func (h *HTTP) Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, fmt.Errorf("%w: %w", ErrInvalidURL, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	req.Header.Set("Accept", "application/yaml, application/json, application/toml")

	resp, err := h.client.Do(req)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ResolvedComponent{}, wrap(rawURL, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return ResolvedComponent{}, wrap(rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxManifestSize+1))
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, fmt.Errorf("failed to read manifest: %w", err))
	}

	if len(data) > MaxManifestSize {
		return ResolvedComponent{}, wrap(rawURL, fmt.Errorf("manifest exceeds %d bytes", MaxManifestSize))
	}

	format := decl.FormatFromContentType(resp.Header.Get("Content-Type"), decl.FormatFromPath(u.Path))

	c, err := decl.Decode(data, format)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	h.logger.Debugw("manifest_fetched", "url", rawURL, "bytes", len(data), "format", format)

	return ResolvedComponent{URL: rawURL, Decl: c, Package: NewPackage(rawURL, data)}, nil
}

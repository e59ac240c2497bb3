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
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
)

const SchemeFile = "file"

// Directory resolves file:///relative/path URLs against a manifest directory.
type Directory struct {
	root   string
	logger *zap.SugaredLogger
}

func NewDirectory(root string, logger *zap.SugaredLogger) *Directory {
	return &Directory{root: root, logger: logger}
}

// pathFor maps a URL to a file below root. The URL path is cleaned first so
// ".." segments can not escape root.
func (d *Directory) pathFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme != SchemeFile {
		return "", fmt.Errorf("%w: expected scheme %q, got %q", ErrInvalidURL, SchemeFile, u.Scheme)
	}

	rel := path.Clean("/" + u.Host + u.Path)
	if rel == "/" {
		return "", fmt.Errorf("%w: %q has no path", ErrInvalidURL, rawURL)
	}

	return filepath.Join(d.root, filepath.FromSlash(rel)), nil
}

// URLFor is the inverse of pathFor for files below root.
func (d *Directory) URLFor(file string) (string, bool) {
	rel, err := filepath.Rel(d.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}

	return SchemeFile + ":///" + filepath.ToSlash(rel), true
}

func (d *Directory) Resolve(ctx context.Context, rawURL string) (ResolvedComponent, error) {
	if err := ctx.Err(); err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	file, err := d.pathFor(rawURL)
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return ResolvedComponent{}, wrap(rawURL, ErrNotFound)
	}

	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	c, err := decl.Decode(data, decl.FormatFromPath(file))
	if err != nil {
		return ResolvedComponent{}, wrap(rawURL, err)
	}

	return ResolvedComponent{URL: rawURL, Decl: c, Package: NewPackage(rawURL, data)}, nil
}

// Watch calls onChange with the URL of every manifest that is written,
// created, removed or renamed below root until ctx is done. Directories
// created after Watch starts are not watched.
func (d *Directory) Watch(ctx context.Context, onChange func(rawURL string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() {
			return watcher.Add(p)
		}

		return nil
	})
	if err != nil {
		_ = watcher.Close()

		return fmt.Errorf("failed to watch manifest directory %s: %w", d.root, err)
	}

	go func() {
		defer func() {
			_ = watcher.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}

				if rawURL, ok := d.URLFor(event.Name); ok {
					d.logger.Debugw("manifest_changed", "url", rawURL, "op", event.Op.String())
					onChange(rawURL)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				d.logger.Warnw("manifest_watch_error", "error", err)
			}
		}
	}()

	return nil
}

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

package routing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
)

// Storage is an opened storage capability backed by a directory.
type Storage struct {
	Path string
}

func (s *Storage) Close() error {
	return nil
}

// LocalStorage routes storage capabilities to <root>/<incarnation>/<name>.
// Other capability types are not routable.
type LocalStorage struct {
	root   string
	logger *zap.SugaredLogger
}

func NewLocalStorage(root string, logger *zap.SugaredLogger) *LocalStorage {
	return &LocalStorage{root: root, logger: logger}
}

func (l *LocalStorage) dir(target Target, name string) (string, error) {
	if err := moniker.ValidateName(name); err != nil {
		return "", &Error{Capability: name, Err: err}
	}

	return filepath.Join(l.root, target.IncarnationID.String(), name), nil
}

func (l *LocalStorage) RouteAndOpenCapability(ctx context.Context, target Target, req Request) (Capability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Type != decl.CapabilityStorage {
		return nil, &Error{Capability: req.Name, Err: fmt.Errorf("%w: %s", ErrNotRoutable, req.Type)}
	}

	dir, err := l.dir(target, req.Name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage %s for %s: %w", req.Name, target.Moniker, err)
	}

	l.logger.Debugw("storage_opened", "moniker", target.Moniker.String(), "storage", req.Name, "path", dir)

	return &Storage{Path: dir}, nil
}

func (l *LocalStorage) RouteAndDeleteStorage(ctx context.Context, target Target, use decl.Use) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := l.dir(target, use.Name)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &Error{Capability: use.Name, Err: ErrStorageNotFound}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete storage %s for %s: %w", use.Name, target.Moniker, err)
	}

	// The incarnation directory goes once its last storage is gone.
	_ = os.Remove(filepath.Dir(dir))

	l.logger.Debugw("storage_deleted", "moniker", target.Moniker.String(), "storage", use.Name)

	return nil
}

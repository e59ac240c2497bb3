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

package component

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff"

	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// Rebooter restarts the system when a component marked reboot-on-terminate
// exits on its own.
type Rebooter interface {
	Reboot(ctx context.Context, reason string) error
}

// RebooterFunc adapts a function to Rebooter.
type RebooterFunc func(ctx context.Context, reason string) error

func (f RebooterFunc) Reboot(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

var errNoRebooter = errors.New("no rebooter configured")

// requestReboot asks the rebooter to reboot, retrying with exponential
// backoff. Nobody waits on the result, so a failure is only reported.
func (m *Model) requestReboot(ctx context.Context, inst *ComponentInstance) {
	reason := fmt.Sprintf("component %s exited and is marked reboot-on-terminate", inst.moniker)

	if m.rebooter == nil {
		sentry.ReportInstanceError(inst.logger, inst.moniker.String(), "reboot", errNoRebooter)

		return
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.rebootRetryInterval
	exp.MaxInterval = 10 * m.rebootRetryInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, m.rebootRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++

		return m.rebooter.Reboot(ctx, reason)
	}, policy)
	if err != nil {
		sentry.ReportInstanceError(inst.logger, inst.moniker.String(), "reboot", fmt.Errorf("reboot failed after %d attempts: %w", attempt, err))

		return
	}

	inst.logger.Warnw("reboot_requested", "reason", reason, "attempts", attempt)
}

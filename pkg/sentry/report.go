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

package sentry

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	// IssueTypeFatal logs, reports and then panics. Use it only for
	// programming defects such as an invalid lifecycle transition.
	IssueTypeFatal IssueType = "fatal"
)

const debounceWindow = 2 * time.Hour

type debouncer struct {
	mu       sync.Mutex
	lastSent time.Time
}

// allow reports whether an event may be sent now and records the send.
func (d *debouncer) allow() bool {
	if !shouldDebounceErrors.Load() {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastSent.IsZero() && time.Since(d.lastSent) < debounceWindow {
		return false
	}

	d.lastSent = time.Now()

	return true
}

var (
	errorDebouncer   = &debouncer{}
	warningDebouncer = &debouncer{}
)

func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext reports an issue with additional context data that will be included in Sentry.
// The log line is always written; only the Sentry event is debounced.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, context map[string]interface{}) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Errorw("fatal_error", "error", err, "stack", string(debug.Stack()))
		sendSentryEvent(createSentryEventWithContext(sentry.LevelFatal, err, context))
		sentry.Flush(5 * time.Second)
		log.Panicf("fatal error: %s", err)
	case IssueTypeError:
		log.Error(err)

		if errorDebouncer.allow() {
			sendSentryEvent(createSentryEventWithContext(sentry.LevelError, err, context))
		}
	case IssueTypeWarning:
		log.Warn(err)

		if warningDebouncer.allow() {
			sendSentryEvent(createSentryEventWithContext(sentry.LevelWarning, err, context))
		}
	}
}

// ReportInstanceError reports a failure of an action on a component instance.
func ReportInstanceError(log *zap.SugaredLogger, moniker string, action string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"moniker":   moniker,
		"action":    action,
		"operation": "background_action",
	})
}

// ReportInstanceFatalf reports an internal consistency failure on a component instance and panics.
func ReportInstanceFatalf(log *zap.SugaredLogger, moniker string, operation string, template string, args ...interface{}) {
	ReportIssueWithContext(fmt.Errorf(template, args...), IssueTypeFatal, log, map[string]interface{}{
		"moniker":   moniker,
		"operation": operation,
	})
}

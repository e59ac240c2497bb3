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
	"errors"
	"strings"

	"github.com/getsentry/sentry-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("Reporting", func() {
	It("titles an error by its first phrase", func() {
		Expect(getMeaningfulErrorTitle(errors.New("failed to stop /a: timeout"))).To(Equal("failed to stop /a"))
		Expect(getMeaningfulErrorTitle(errors.New(strings.Repeat("x", 150)))).To(HaveLen(100))
	})

	It("tags instance context and adds it to the fingerprint", func() {
		event := createSentryEventWithContext(sentry.LevelWarning, errors.New("boom"), map[string]interface{}{
			"moniker":   "/a",
			"action":    "stop",
			"attempts":  3,
			"operation": "background_action",
			"details":   []string{"x"},
		})

		Expect(event.Tags).To(HaveKeyWithValue("moniker", "/a"))
		Expect(event.Tags).To(HaveKeyWithValue("attempts", "3"))
		Expect(event.Extra).To(HaveKey("details"))
		Expect(event.Fingerprint).To(ContainElements("action: stop", "operation: background_action"))
		Expect(event.Threads).To(BeEmpty())
	})

	It("attaches goroutines to errors", func() {
		event := createSentryEvent(sentry.LevelError, errors.New("boom"))

		Expect(event.Threads).NotTo(BeEmpty())
		Expect(event.Attachments).To(HaveLen(1))
	})

	It("debounces only outside test mode", func() {
		DisableTestMode()
		DeferCleanup(EnableTestMode)

		d := &debouncer{}
		Expect(d.allow()).To(BeTrue())
		Expect(d.allow()).To(BeFalse())

		EnableTestMode()
		Expect(d.allow()).To(BeTrue())
	})

	It("logs every issue and panics on fatal ones", func() {
		EnableTestMode()

		core, logs := observer.New(zap.DebugLevel)
		log := zap.New(core).Sugar()

		ReportInstanceError(log, "/a", "stop", errors.New("stop failed"))
		Expect(logs.FilterMessage("stop failed").Len()).To(Equal(1))

		Expect(func() {
			ReportInstanceFatalf(log, "/a", "transition", "invalid transition %s", "purged -> new")
		}).To(PanicWith(ContainSubstring("invalid transition purged -> new")))
	})
})

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

package component_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
)

var _ = Describe("Unexpected exits", func() {
	var env *componenttest.Env

	newRebootEnv := func(onTerminate decl.OnTerminate) *component.ComponentInstance {
		env = newEnv(componenttest.NewDecl().
			ChildDecl(decl.Child{
				Name:        "critical",
				URL:         componenttest.URL("critical"),
				Startup:     decl.StartupEager,
				OnTerminate: onTerminate,
			}).
			Build())
		env.Add("critical", componenttest.NewDecl().Program().Build())

		Expect(env.Model.Start(testCtx())).To(Succeed())

		inst, err := env.Model.Find(mustParse("/critical"))
		Expect(err).NotTo(HaveOccurred())
		Expect(inst.IsRunning()).To(BeTrue())

		return inst
	}

	It("stop the instance", func() {
		inst := newRebootEnv(decl.OnTerminateNone)

		env.Runner.Controller("/critical").Exit(errors.New("segfault"))

		Eventually(inst.IsRunning).Should(BeFalse())
		Eventually(func() int { return env.Hook.Count(hooks.EventStopped, "/critical") }).Should(Equal(1))
		Expect(inst.IsShutDown()).To(BeFalse())
		Consistently(env.Rebooter.Calls, 50*time.Millisecond).Should(BeZero())

		Expect(inst.Start(testCtx(), component.StartReasonDebug)).To(Succeed())
		Expect(env.Runner.StartCount("/critical")).To(Equal(2))
	})

	It("request a reboot when the child is marked for it", func() {
		inst := newRebootEnv(decl.OnTerminateReboot)

		env.Runner.Controller("/critical").Exit(nil)

		Eventually(env.Rebooter.Reasons).Should(ConsistOf(ContainSubstring("/critical")))
		Eventually(inst.IsRunning).Should(BeFalse())
	})

	It("retry a failing reboot", func() {
		inst := newRebootEnv(decl.OnTerminateReboot)
		env.Rebooter.FailTimes.Store(2)

		env.Runner.Controller("/critical").Exit(nil)

		Eventually(env.Rebooter.Calls).Should(Equal(3))
		Expect(env.Rebooter.Reasons()).To(HaveLen(1))
		Eventually(inst.IsRunning).Should(BeFalse())
	})

	It("are not confused with a requested stop", func() {
		inst := newRebootEnv(decl.OnTerminateReboot)

		Expect(inst.Stop(testCtx())).To(Succeed())

		Consistently(env.Rebooter.Calls, 100*time.Millisecond).Should(BeZero())
		Expect(env.Hook.Count(hooks.EventStopped, "/critical")).To(Equal(1))
	})
})

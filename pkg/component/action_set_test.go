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
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
)

var _ = Describe("Action", func() {
	It("ignores the start reason for identity", func() {
		a := component.StartAction(component.StartReasonDebug)
		b := component.StartAction(component.StartReasonEager)

		Expect(a.Key()).To(Equal(b.Key()))
		Expect(a.String()).To(Equal("start(debug)"))
	})

	It("keys child actions by child", func() {
		a := component.DeleteChildAction(staticChild("a"))
		b := component.DeleteChildAction(staticChild("b"))

		Expect(a.Key()).NotTo(Equal(b.Key()))
		Expect(a.Key().String()).To(Equal("delete_child(a:0)"))
		Expect(component.MarkDeletingAction(staticChild("a")).Key()).NotTo(Equal(a.Key()))
	})
})

var _ = Describe("ActionSet", func() {
	var env *componenttest.Env

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().Program().Build())
	})

	It("runs concurrent registrations of one action once", func() {
		release := env.Runner.Block()
		root := env.Model.Root()

		const callers = 10

		var (
			wg   sync.WaitGroup
			errs = make([]error, callers)
		)

		for i := range callers {
			wg.Add(1)

			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				errs[i] = root.Start(testCtx(), component.StartReasonDebug)
			}()
		}

		Eventually(func() bool {
			return root.Actions().Contains(component.StartAction("").Key())
		}).Should(BeTrue())

		release()
		wg.Wait()

		for _, err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(env.Runner.StartCount("/")).To(Equal(1))
		Expect(env.Hook.Count(hooks.EventRunning, "/")).To(Equal(1))
		Expect(root.Actions().Keys()).To(BeEmpty())
	})

	It("hands every caller the same failure", func() {
		boom := errors.New("boom")
		env.Runner.FailStart("/", boom)
		release := env.Runner.Block()
		root := env.Model.Root()

		first := root.RegisterNoWait(component.StartAction(component.StartReasonDebug))
		second := root.RegisterNoWait(component.StartAction(component.StartReasonRoot))
		release()

		err1 := first.Wait(testCtx())
		err2 := second.Wait(testCtx())

		Expect(err1).To(MatchError(boom))
		Expect(err2).To(BeIdenticalTo(err1))
		Expect(env.Runner.StartCount("/")).To(Equal(1))
	})

	It("runs an action again once the previous run finished", func() {
		root := env.Model.Root()

		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())
		Expect(root.Stop(testCtx())).To(Succeed())
		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		Expect(env.Runner.StartCount("/")).To(Equal(2))
	})

	It("keeps the first start reason", func() {
		release := env.Runner.Block()
		root := env.Model.Root()

		first := root.RegisterNoWait(component.StartAction(component.StartReasonDebug))
		second := root.RegisterNoWait(component.StartAction(component.StartReasonEager))
		release()

		Expect(first.Wait(testCtx())).To(Succeed())
		Expect(second.Wait(testCtx())).To(Succeed())

		var reasons []string
		for _, e := range env.Hook.Events() {
			if e.Type == hooks.EventRunning {
				reasons = append(reasons, e.Payload.(*hooks.RunningPayload).StartReason)
			}
		}

		Expect(reasons).To(Equal([]string{string(component.StartReasonDebug)}))
	})

	It("lets a caller give up without cancelling the action", func() {
		release := env.Runner.Block()
		root := env.Model.Root()

		ctx, cancel := testCtxWithCancel()
		pending := root.RegisterNoWait(component.StartAction(component.StartReasonDebug))
		cancel()

		Expect(pending.Wait(ctx)).To(MatchError(ContainSubstring("context canceled")))

		release()
		Eventually(pending.Done()).Should(BeClosed())
		Expect(root.IsRunning()).To(BeTrue())
	})

	DescribeTable("never executes Stop and Shutdown together",
		func(first, second component.Action) {
			env = newEnv(componenttest.NewDecl().Program().Build(), componenttest.WithStopTimeout(time.Minute))
			env.Runner.Configure = func(_ string, c *componenttest.FakeController) {
				c.IgnoreStop.Store(true)
			}

			root := env.Model.Root()
			Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

			firstPending := root.RegisterNoWait(first)
			Eventually(func() int { return env.Runner.Controller("/").StopCount() }).Should(Equal(1))
			Expect(root.Actions().IsExecuting(first.Key())).To(BeTrue())

			secondPending := root.RegisterNoWait(second)
			Expect(root.Actions().Contains(second.Key())).To(BeTrue())
			Consistently(func() bool {
				return root.Actions().IsExecuting(second.Key())
			}, 200*time.Millisecond).Should(BeFalse())

			env.Runner.Controller("/").Exit(nil)

			Expect(firstPending.Wait(testCtx())).To(Succeed())
			Expect(secondPending.Wait(testCtx())).To(Succeed())

			Expect(root.IsRunning()).To(BeFalse())
			Expect(root.IsShutDown()).To(BeTrue())
			Expect(env.Hook.Count(hooks.EventStopped, "/")).To(Equal(1))
		},
		Entry("shutdown registered during stop", component.StopAction(), component.ShutdownAction()),
		Entry("stop registered during shutdown", component.ShutdownAction(), component.StopAction()),
	)

	It("does not block unrelated actions on a stop in flight", func() {
		env = newEnv(componenttest.NewDecl().Program().Build(), componenttest.WithStopTimeout(time.Minute))
		env.Runner.Configure = func(_ string, c *componenttest.FakeController) {
			c.IgnoreStop.Store(true)
		}

		root := env.Model.Root()
		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		stop := root.RegisterNoWait(component.StopAction())
		Eventually(func() int { return env.Runner.Controller("/").StopCount() }).Should(Equal(1))

		// Already running, so the start is a no-op that completes right away.
		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		env.Runner.Controller("/").Exit(nil)
		Expect(stop.Wait(testCtx())).To(Succeed())
	})
})

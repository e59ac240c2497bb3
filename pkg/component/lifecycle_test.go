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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
)

var _ = Describe("Resolve", func() {
	It("discovers and resolves once for concurrent callers", func() {
		env := newEnv(componenttest.NewDecl().Child("a", decl.StartupLazy).Build())
		env.Add("a", componenttest.NewDecl().Build())
		root := env.Model.Root()

		Expect(root.LifecycleState()).To(Equal(component.StateNew))

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)

			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				_, err := root.Resolve(testCtx())
				Expect(err).NotTo(HaveOccurred())
			}()
		}

		wg.Wait()

		Expect(root.LifecycleState()).To(Equal(component.StateResolved))
		Expect(env.Hook.Count(hooks.EventDiscovered, "/")).To(Equal(1))
		Expect(env.Hook.Count(hooks.EventResolved, "/")).To(Equal(1))
		Expect(env.Hook.Monikers(hooks.EventDiscovered)).To(Equal([]string{"/", "/a"}))

		child, ok := root.Children()[staticChild("a")]
		Expect(ok).To(BeTrue())
		Expect(child.LifecycleState()).To(Equal(component.StateDiscovered))
	})

	It("surfaces a missing declaration as a resolve error", func() {
		env := newEnv(componenttest.NewDecl().Child("missing", decl.StartupLazy).Build())
		root := env.Model.Root()
		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		_, child, ok := root.GetLiveChild(childName("missing", ""))
		Expect(ok).To(BeTrue())

		_, err := child.Resolve(testCtx())

		var resolveErr *component.ResolveError
		Expect(errors.As(err, &resolveErr)).To(BeTrue())
		Expect(resolveErr.URL).To(Equal(componenttest.URL("missing")))
		Expect(err).To(MatchError(resolver.ErrNotFound))
		Expect(child.LifecycleState()).To(Equal(component.StateDiscovered))
	})

	It("rejects invalid declarations", func() {
		env := newEnv(&decl.Component{Program: &decl.Program{}})

		_, err := env.Model.Root().Resolve(testCtx())
		Expect(err).To(MatchError(decl.ErrInvalid))
	})

	It("retries a failed resolution from scratch", func() {
		env := newEnv(componenttest.NewDecl().Child("late", decl.StartupLazy).Build())
		root := env.Model.Root()
		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())
		_, child, _ := root.GetLiveChild(childName("late", ""))

		_, err := child.Resolve(testCtx())
		Expect(err).To(HaveOccurred())

		env.Add("late", componenttest.NewDecl().Build())

		_, err = child.Resolve(testCtx())
		Expect(err).NotTo(HaveOccurred())
		Expect(child.LifecycleState()).To(Equal(component.StateResolved))
	})
})

var _ = Describe("Start", func() {
	var env *componenttest.Env

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().
			Program().
			Child("eager", decl.StartupEager).
			Child("lazy", decl.StartupLazy).
			Build())
		env.Add("eager", componenttest.NewDecl().Program().Build())
		env.Add("lazy", componenttest.NewDecl().Program().Build())
	})

	It("starts eager children and leaves lazy ones alone", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		Expect(env.Runner.Started()).To(Equal([]string{"/", "/eager"}))
		Expect(env.Hook.Monikers(hooks.EventRunning)).To(Equal([]string{"/", "/eager"}))

		_, lazy, ok := env.Model.Root().GetLiveChild(childName("lazy", ""))
		Expect(ok).To(BeTrue())
		Expect(lazy.IsRunning()).To(BeFalse())
	})

	It("dispatches discovered, resolved and running in order", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		var types []hooks.EventType
		for _, e := range env.Hook.Events() {
			if e.Moniker.String() == "/" {
				types = append(types, e.Type)
			}
		}

		Expect(types).To(Equal([]hooks.EventType{hooks.EventDiscovered, hooks.EventResolved, hooks.EventRunning}))
	})

	It("passes the router and target to the runner", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		info, ok := env.Runner.StartInfo("/eager")
		Expect(ok).To(BeTrue())
		Expect(info.URL).To(Equal(componenttest.URL("eager")))
		Expect(info.Program.Runner).To(Equal(componenttest.RunnerName))
		Expect(info.Router).NotTo(BeNil())
		Expect(info.Target.IncarnationID).NotTo(BeZero())
	})

	It("runs components without a program without a controller", func() {
		env = newEnv(componenttest.NewDecl().Build())
		root := env.Model.Root()

		Expect(root.Start(testCtx(), component.StartReasonDebug)).To(Succeed())
		Expect(root.IsRunning()).To(BeTrue())
		Expect(env.Runner.Started()).To(BeEmpty())

		Expect(root.Stop(testCtx())).To(Succeed())
		Expect(root.IsRunning()).To(BeFalse())

		events := env.Hook.Events()
		last := events[len(events)-1]
		Expect(last.Type).To(Equal(hooks.EventStopped))
		Expect(last.Payload).To(Equal(&hooks.StoppedPayload{Outcome: string(component.StopOutcomeNoController)}))
	})

	It("reports runner failures as start errors", func() {
		boom := errors.New("boom")
		env.Runner.FailStart("/", boom)

		err := env.Model.Start(testCtx())

		var startErr *component.StartError
		Expect(errors.As(err, &startErr)).To(BeTrue())
		Expect(startErr.Moniker).To(Equal("/"))
		Expect(err).To(MatchError(boom))
		Expect(env.Model.Root().IsRunning()).To(BeFalse())
	})

	It("fails when the runner is not in the environment", func() {
		env = newEnv(&decl.Component{Program: &decl.Program{Runner: "elf"}})

		Expect(env.Model.Start(testCtx())).To(MatchError(component.ErrNoRunner))
	})

	It("fails the start when an eager child fails", func() {
		env.Runner.FailStart("/eager", errors.New("eager failed"))

		Expect(env.Model.Start(testCtx())).To(MatchError(ContainSubstring("eager failed")))
		Expect(env.Model.Root().IsRunning()).To(BeTrue())
	})

	It("aborts when a hook fails", func() {
		hookErr := errors.New("hook refused")
		env.Hook.FailOn(hooks.EventResolved, hookErr)

		err := env.Model.Start(testCtx())
		Expect(err).To(MatchError(hookErr))

		var dispatchErr *hooks.DispatchError
		Expect(errors.As(err, &dispatchErr)).To(BeTrue())
		Expect(env.Runner.Started()).To(BeEmpty())
	})

	It("refuses to start after shutdown", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(env.Model.Start(testCtx())).To(MatchError(component.ErrInstanceShutDown))
	})

	It("starts lazily to open a capability", func() {
		lazy := resolvedChild(env, "lazy")

		capability, err := lazy.OpenCapability(testCtx(), routing.Request{Type: decl.CapabilityProtocol, Name: "test.Protocol"})
		Expect(err).NotTo(HaveOccurred())
		Expect(capability.Close()).To(Succeed())

		Expect(lazy.IsRunning()).To(BeTrue())

		for _, e := range env.Hook.Events() {
			if e.Type == hooks.EventRunning && e.Moniker.String() == "/lazy" {
				Expect(e.Payload.(*hooks.RunningPayload).StartReason).To(Equal(string(component.StartReasonAccessCapability)))
			}
		}
	})
})

// resolvedChild resolves the root and returns its static child called name.
func resolvedChild(env *componenttest.Env, name string) *component.ComponentInstance {
	_, err := env.Model.Root().Resolve(testCtx())
	Expect(err).NotTo(HaveOccurred())

	_, child, ok := env.Model.Root().GetLiveChild(childName(name, ""))
	Expect(ok).To(BeTrue())

	return child
}

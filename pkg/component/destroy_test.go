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
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
)

var _ = Describe("MarkDeleting", func() {
	It("hides the child but keeps it in the tree", func() {
		env := newEnv(componenttest.NewDecl().Child("a", decl.StartupLazy).Build())
		root := env.Model.Root()
		_, err := root.Resolve(testCtx())
		Expect(err).NotTo(HaveOccurred())

		a := staticChild("a")
		Expect(root.Register(testCtx(), component.MarkDeletingAction(a))).To(Succeed())
		Expect(root.Register(testCtx(), component.MarkDeletingAction(a))).To(Succeed())

		Expect(root.LiveChildren()).To(BeEmpty())
		Expect(root.Children()).To(HaveKey(a))
		Expect(env.Hook.Count(hooks.EventMarkedForDestruction, "/a")).To(Equal(1))

		_, err = env.Model.Find(root.Moniker().Child(a))
		Expect(err).To(MatchError(component.ErrInstanceNotFound))
	})

	It("leaves the child live when the hook fails", func() {
		env := newEnv(componenttest.NewDecl().Child("a", decl.StartupLazy).Build())
		env.Hook.FailOn(hooks.EventMarkedForDestruction, errors.New("no"))
		root := env.Model.Root()
		_, err := root.Resolve(testCtx())
		Expect(err).NotTo(HaveOccurred())

		Expect(root.Register(testCtx(), component.MarkDeletingAction(staticChild("a")))).NotTo(Succeed())
		Expect(root.LiveChildren()).To(ConsistOf(staticChild("a")))
	})
})

var _ = Describe("DeleteChild", func() {
	var (
		env  *componenttest.Env
		root *component.ComponentInstance
	)

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().Collection("coll", decl.DurabilityTransient).Build())
		env.Add("a", componenttest.NewDecl().Program().Child("inner", decl.StartupEager).Build())
		env.Add("inner", componenttest.NewDecl().Program().Build())
		root = env.Model.Root()
	})

	It("dispatches destroyed exactly once for racing deletions", func() {
		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("a"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		_, inst, _ := root.GetLiveChild(cm.ChildName)
		Expect(inst.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)

			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				Expect(root.DeleteChild(testCtx(), cm)).To(Succeed())
			}()
		}

		wg.Wait()

		Expect(root.Children()).NotTo(HaveKey(cm))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/coll:a")).To(Equal(1))
		Expect(env.Hook.Count(hooks.EventMarkedForDestruction, "/coll:a")).To(Equal(1))
		Expect(inst.LifecycleState()).To(Equal(component.StatePurged))
	})

	It("destroys the subtree bottom-up", func() {
		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("a"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		_, inst, _ := root.GetLiveChild(cm.ChildName)
		Expect(inst.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		Expect(root.DeleteChild(testCtx(), cm)).To(Succeed())

		Expect(env.Hook.Monikers(hooks.EventStopped)).To(Equal([]string{"/coll:a/inner", "/coll:a"}))
		Expect(env.Hook.Monikers(hooks.EventDestroyed)).To(Equal([]string{"/coll:a/inner", "/coll:a"}))
	})

	It("is a no-op for a child that is already gone", func() {
		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("a"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		Expect(root.DeleteChild(testCtx(), cm)).To(Succeed())
		Expect(root.DeleteChild(testCtx(), cm)).To(Succeed())

		Expect(env.Hook.Count(hooks.EventDestroyed, "/coll:a")).To(Equal(1))
	})

	It("keeps the child until destroyed was delivered", func() {
		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("a"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		boom := errors.New("boom")
		env.Hook.FailOn(hooks.EventDestroyed, boom)

		Expect(root.DeleteChild(testCtx(), cm)).To(MatchError(boom))
		Expect(root.Children()).To(HaveKey(cm))
		Expect(root.LiveChildren()).To(BeEmpty())

		env.Hook.FailOn(hooks.EventDestroyed, nil)
		Expect(root.DeleteChild(testCtx(), cm)).To(Succeed())

		Expect(root.Children()).NotTo(HaveKey(cm))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/coll:a")).To(Equal(2))
		Expect(env.Hook.Count(hooks.EventMarkedForDestruction, "/coll:a")).To(Equal(1))
	})
})

var _ = Describe("Destroy", func() {
	var (
		env  *componenttest.Env
		root *component.ComponentInstance
	)

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().
			Program().
			Storage("cache").
			Child("a", decl.StartupEager).
			Child("b", decl.StartupEager).
			Build())
		env.Add("a", componenttest.NewDecl().Program().Storage("data").Build())
		env.Add("b", componenttest.NewDecl().Program().Build())
		root = env.Model.Root()
		Expect(env.Model.Start(testCtx())).To(Succeed())
	})

	It("shuts down, deletes every child and purges", func() {
		Expect(root.Destroy(testCtx())).To(Succeed())

		Expect(root.LifecycleState()).To(Equal(component.StatePurged))
		Expect(root.IsShutDown()).To(BeTrue())
		Expect(root.Children()).To(BeEmpty())
		Expect(env.Hook.Monikers(hooks.EventDestroyed)).To(ConsistOf("/a", "/b"))
		Expect(env.Router.Deleted()).To(ConsistOf("/a/data", "//cache"))
		Expect(root.Tasks().Spawn(func(ctx context.Context) {})).To(BeFalse())
	})

	It("succeeds without side effects on a purged instance", func() {
		Expect(root.Destroy(testCtx())).To(Succeed())

		events := len(env.Hook.Events())
		deleted := len(env.Router.Deleted())

		Expect(root.Destroy(testCtx())).To(Succeed())

		Expect(env.Hook.Events()).To(HaveLen(events))
		Expect(env.Router.Deleted()).To(HaveLen(deleted))
	})

	It("finishes even when storage cannot be deleted", func() {
		env.Router.FailDeletes(&routing.Error{Capability: "data", Err: routing.ErrStorageNotFound})

		Expect(root.Destroy(testCtx())).To(Succeed())
		Expect(root.LifecycleState()).To(Equal(component.StatePurged))
	})

	It("attempts every child and keeps the instance when one fails", func() {
		boom := errors.New("boom")
		env.Hook.FailOn(hooks.EventDestroyed, boom)

		err := root.Destroy(testCtx())

		var destroyErr *component.DestroyError
		Expect(errors.As(err, &destroyErr)).To(BeTrue())
		Expect(err).To(MatchError(boom))

		Expect(root.Children()).To(HaveLen(2))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/a")).To(Equal(1))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/b")).To(Equal(1))
		Expect(root.LifecycleState()).To(Equal(component.StateResolved))

		env.Hook.FailOn(hooks.EventDestroyed, nil)
		Expect(root.Destroy(testCtx())).To(Succeed())
		Expect(root.LifecycleState()).To(Equal(component.StatePurged))
		Expect(root.Children()).To(BeEmpty())
		Expect(env.Hook.Count(hooks.EventDestroyed, "/a")).To(Equal(2))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/b")).To(Equal(2))
	})

	It("destroys an instance that was never resolved", func() {
		env = newEnv(componenttest.NewDecl().Build())

		Expect(env.Model.Root().Destroy(testCtx())).To(Succeed())
		Expect(env.Model.Root().LifecycleState()).To(Equal(component.StatePurged))
		Expect(env.Hook.Events()).To(BeEmpty())
	})
})

var _ = Describe("Single-run children", func() {
	var (
		env  *componenttest.Env
		root *component.ComponentInstance
	)

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().Collection("jobs", decl.DurabilitySingleRun).Build())
		env.Add("job", componenttest.NewDecl().Program().Build())
		env.Add("noop", componenttest.NewDecl().Build())
		root = env.Model.Root()
	})

	It("are destroyed once their program exits", func() {
		cm, err := root.CreateChild(testCtx(), "jobs", dynamicChild("job"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())
		Expect(root.Children()).To(HaveKey(cm))

		env.Runner.Controller("/jobs:job").Exit(nil)

		Eventually(root.Children).ShouldNot(HaveKey(cm))
		Eventually(func() int {
			return env.Hook.Count(hooks.EventDestroyed, "/jobs:job")
		}).Should(Equal(1))
	})

	It("are destroyed when stopped", func() {
		cm, err := root.CreateChild(testCtx(), "jobs", dynamicChild("noop"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		_, inst, _ := root.GetLiveChild(cm.ChildName)
		Expect(inst.IsRunning()).To(BeTrue())
		Expect(inst.Stop(testCtx())).To(Succeed())

		Eventually(root.Children).ShouldNot(HaveKey(cm))
		Eventually(inst.LifecycleState).Should(Equal(component.StatePurged))
	})
})

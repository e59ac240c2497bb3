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
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
)

var _ = Describe("Model", func() {
	var env *componenttest.Env

	BeforeEach(func() {
		env = newEnv(componenttest.NewDecl().
			Program().
			Child("a", decl.StartupEager).
			Collection("coll", decl.DurabilityTransient).
			Build())
		env.Add("a", componenttest.NewDecl().Program().Child("b", decl.StartupLazy).Build())
		env.Add("b", leaf())
		env.Add("d", leaf())
	})

	It("requires a root url and resolvers", func() {
		_, err := component.NewModel(component.ModelParams{Resolvers: resolver.NewRegistry()})
		Expect(err).To(HaveOccurred())

		_, err = component.NewModel(component.ModelParams{RootURL: componenttest.URL("root")})
		Expect(err).To(HaveOccurred())
	})

	It("finds live instances by moniker", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		root, err := env.Model.Find(mustParse("/"))
		Expect(err).NotTo(HaveOccurred())
		Expect(root).To(BeIdenticalTo(env.Model.Root()))

		b, err := env.Model.Find(mustParse("/a/b"))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.URL()).To(Equal(componenttest.URL("b")))

		_, err = env.Model.Find(mustParse("/a/nope"))
		Expect(err).To(MatchError(component.ErrInstanceNotFound))
	})

	It("starts and stops instances by moniker", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		Expect(env.Model.StartInstance(testCtx(), mustParse("/a/b"), component.StartReasonDebug)).To(Succeed())
		Expect(env.Runner.StartCount("/a/b")).To(Equal(1))

		Expect(env.Model.StopInstance(testCtx(), mustParse("/a"))).To(Succeed())
		Expect(env.Hook.Monikers(hooks.EventStopped)).To(Equal([]string{"/a/b", "/a"}))

		Expect(env.Model.ShutdownInstance(testCtx(), mustParse("/a"))).To(Succeed())
		a, err := env.Model.Find(mustParse("/a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(a.IsShutDown()).To(BeTrue())
		Expect(env.Model.Root().IsShutDown()).To(BeFalse())
	})

	It("destroys an instance through its parent", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		cm, err := env.Model.CreateChild(testCtx(), mustParse("/"), "coll", dynamicChild("d"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		Expect(env.Model.DestroyInstance(testCtx(), mustParse("/coll:d"))).To(Succeed())
		Expect(env.Model.Root().Children()).NotTo(HaveKey(cm))
		Expect(env.Hook.Count(hooks.EventDestroyed, "/coll:d")).To(Equal(1))

		Expect(env.Model.DestroyInstance(testCtx(), mustParse("/coll:d"))).To(MatchError(component.ErrInstanceNotFound))
	})

	It("destroys the root in place", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		Expect(env.Model.DestroyInstance(testCtx(), mustParse("/"))).To(Succeed())
		Expect(env.Model.Root().LifecycleState()).To(Equal(component.StatePurged))

		_, err := env.Model.Root().Resolve(testCtx())
		Expect(err).To(MatchError(component.ErrInstanceDestroyed))
	})

	It("has no parent above the root", func() {
		_, err := env.Model.Root().Parent()
		Expect(err).To(MatchError(component.ErrParentGone))
	})

	It("snapshots the tree", func() {
		Expect(env.Model.Start(testCtx())).To(Succeed())

		snap := env.Model.Snapshot()
		Expect(snap.Moniker).To(Equal("/"))
		Expect(snap.State).To(Equal(component.StateResolved))
		Expect(snap.Running).To(BeTrue())
		Expect(snap.StartReason).To(Equal(component.StartReasonRoot))
		Expect(snap.StartedAt).NotTo(BeNil())
		Expect(snap.Actions).To(BeEmpty())
		Expect(snap.Incarnation).To(Equal(env.Model.Root().IncarnationID().String()))

		Expect(snap.Children).To(HaveLen(1))
		a := snap.Children[0]
		Expect(a.Moniker).To(Equal("/a:0"))
		Expect(a.Running).To(BeTrue())
		Expect(a.StartReason).To(Equal(component.StartReasonEager))

		Expect(a.Children).To(HaveLen(1))
		Expect(a.Children[0].State).To(Equal(component.StateDiscovered))
		Expect(a.Children[0].Running).To(BeFalse())
	})

	It("marks children that are being deleted", func() {
		root := env.Model.Root()
		_, err := root.Resolve(testCtx())
		Expect(err).NotTo(HaveOccurred())

		Expect(root.Register(testCtx(), component.MarkDeletingAction(staticChild("a")))).To(Succeed())

		snap := root.Snapshot()
		Expect(snap.Children).To(HaveLen(1))
		Expect(snap.Children[0].Deleting).To(BeTrue())
	})
})

var _ = Describe("TaskGroup", func() {
	It("runs tasks until destroyed and refuses new ones afterwards", func() {
		env := newEnv(componenttest.NewDecl().Build())
		root := env.Model.Root()

		var ran atomic.Bool
		Expect(root.Tasks().Spawn(func(ctx context.Context) {
			ran.Store(true)
		})).To(BeTrue())
		Eventually(ran.Load).Should(BeTrue())

		var cancelled atomic.Bool
		Expect(root.Tasks().Spawn(func(ctx context.Context) {
			<-ctx.Done()
			cancelled.Store(true)
		})).To(BeTrue())

		Expect(root.Destroy(testCtx())).To(Succeed())

		Eventually(cancelled.Load).Should(BeTrue())
		Expect(root.Tasks().Spawn(func(context.Context) {})).To(BeFalse())

		root.Tasks().Wait()
		Expect(root.Tasks().Len()).To(BeZero())
	})
})

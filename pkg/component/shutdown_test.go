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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
)

func leaf() *decl.Component {
	return componenttest.NewDecl().Program().Build()
}

var _ = Describe("Shutdown", func() {
	stopped := func(env *componenttest.Env) []string {
		return env.Hook.Monikers(hooks.EventStopped)
	}

	It("stops independent children before their parent", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("c", decl.StartupEager).
			Child("d", decl.StartupEager).
			Build())
		env.Add("c", leaf())
		env.Add("d", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		order := stopped(env)
		Expect(order).To(ConsistOf("/c", "/d", "/"))
		Expect(order[2]).To(Equal("/"))

		for _, m := range []string{"/", "/c", "/d"} {
			inst, err := env.Model.Find(mustParse(m))
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.IsShutDown()).To(BeTrue())
			Expect(inst.IsRunning()).To(BeFalse())
		}
	})

	It("stops a dependent before its provider", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("c", decl.StartupEager).
			Child("d", decl.StartupEager).
			Offer(decl.ChildRef("d"), decl.ChildRef("c")).
			Build())
		env.Add("c", leaf())
		env.Add("d", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(Equal([]string{"/c", "/d", "/"}))
	})

	It("waits for every dependent of a shared provider", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("p", decl.StartupEager).
			Child("x", decl.StartupEager).
			Child("y", decl.StartupEager).
			Child("z", decl.StartupEager).
			Offer(decl.ChildRef("p"), decl.ChildRef("x")).
			Offer(decl.ChildRef("p"), decl.ChildRef("y")).
			Offer(decl.ChildRef("p"), decl.ChildRef("z")).
			Build())

		for _, name := range []string{"p", "x", "y", "z"} {
			env.Add(name, leaf())
		}

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		order := stopped(env)
		Expect(order).To(HaveLen(5))

		for _, dependent := range []string{"/x", "/y", "/z"} {
			Expect(indexOf(order, dependent)).To(BeNumerically("<", indexOf(order, "/p")))
		}

		Expect(order[4]).To(Equal("/"))
	})

	It("waits for a dependent of several providers", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("p1", decl.StartupEager).
			Child("p2", decl.StartupEager).
			Child("c", decl.StartupEager).
			Offer(decl.ChildRef("p1"), decl.ChildRef("c")).
			Offer(decl.ChildRef("p2"), decl.ChildRef("c")).
			Build())

		for _, name := range []string{"p1", "p2", "c"} {
			env.Add(name, leaf())
		}

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		order := stopped(env)
		Expect(order).To(HaveLen(4))
		Expect(order[0]).To(Equal("/c"))
		Expect(order[1:3]).To(ConsistOf("/p1", "/p2"))
		Expect(order[3]).To(Equal("/"))
	})

	It("handles a component that declares itself as a child", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("c", decl.StartupLazy).
			Build())
		env.Add("c", componenttest.NewDecl().Program().Child("c", decl.StartupLazy).Build())

		Expect(env.Model.Start(testCtx())).To(Succeed())

		for _, m := range []string{"/c", "/c/c", "/c/c/c"} {
			Expect(env.Model.StartInstance(testCtx(), mustParse(m), component.StartReasonDebug)).To(Succeed())
		}

		Expect(env.Model.Shutdown(testCtx())).To(Succeed())
		Expect(stopped(env)).To(Equal([]string{"/c/c/c", "/c/c", "/c", "/"}))

		Expect(env.Model.Root().Destroy(testCtx())).To(Succeed())
		Expect(env.Hook.Monikers(hooks.EventDestroyed)).To(Equal([]string{"/c/c/c/c", "/c/c/c", "/c/c", "/c"}))
	})

	It("stops the parent before a child it uses", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("c", decl.StartupEager).
			Use(decl.Use{Type: decl.CapabilityProtocol, Source: decl.ChildRef("c"), Name: "test.Protocol"}).
			Build())
		env.Add("c", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(Equal([]string{"/", "/c"}))
	})

	It("ignores weak dependencies", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("c", decl.StartupEager).
			Use(decl.Use{
				Type:       decl.CapabilityProtocol,
				Source:     decl.ChildRef("c"),
				Name:       "test.Protocol",
				Dependency: decl.DependencyWeak,
			}).
			Build())
		env.Add("c", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(Equal([]string{"/c", "/"}))
	})

	It("shuts grandchildren down before their parents", func() {
		env := newEnv(componenttest.NewDecl().Program().Child("mid", decl.StartupEager).Build())
		env.Add("mid", componenttest.NewDecl().Program().Child("leaf", decl.StartupEager).Build())
		env.Add("leaf", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(Equal([]string{"/mid/leaf", "/mid", "/"}))
	})

	It("destroys transient children once the parent is down", func() {
		env := newEnv(componenttest.NewDecl().Program().Collection("coll", decl.DurabilityTransient).Build())
		env.Add("a", leaf())
		root := env.Model.Root()

		Expect(env.Model.Start(testCtx())).To(Succeed())

		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("a"), component.CreateChildArgs{})
		Expect(err).NotTo(HaveOccurred())

		_, a, _ := root.GetLiveChild(cm.ChildName)
		Expect(a.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(Equal([]string{"/coll:a", "/"}))
		Expect(root.Children()).To(BeEmpty())
		Expect(env.Hook.Count(hooks.EventDestroyed, "/coll:a")).To(Equal(1))
	})

	It("completes when a dynamic offer closes a dependency cycle", func() {
		env := newEnv(componenttest.NewDecl().
			Program().
			Child("a", decl.StartupEager).
			CollectionDecl(decl.Collection{
				Name:          "coll",
				Durability:    decl.DurabilityTransient,
				AllowedOffers: decl.AllowedOffersStaticAndDynamic,
			}).
			OfferDecl(decl.Offer{
				Type:       decl.CapabilityService,
				Source:     decl.ChildRef("coll"),
				SourceName: "test.Service",
				Target:     decl.ChildRef("a"),
			}).
			Build())
		env.Add("a", leaf())
		env.Add("x", leaf())
		root := env.Model.Root()

		Expect(env.Model.Start(testCtx())).To(Succeed())

		cm, err := root.CreateChild(testCtx(), "coll", dynamicChild("x"), component.CreateChildArgs{
			DynamicOffers: []decl.Offer{{
				Type:       decl.CapabilityProtocol,
				Source:     decl.ChildRef("a"),
				SourceName: "test.Protocol",
			}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, x, _ := root.GetLiveChild(cm.ChildName)
		Expect(x.Start(testCtx(), component.StartReasonDebug)).To(Succeed())

		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		order := stopped(env)
		Expect(order).To(ConsistOf("/a", "/coll:x", "/"))
		Expect(order[2]).To(Equal("/"))
	})

	It("is idempotent", func() {
		env := newEnv(componenttest.NewDecl().Program().Child("c", decl.StartupEager).Build())
		env.Add("c", leaf())

		Expect(env.Model.Start(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())
		Expect(env.Model.Shutdown(testCtx())).To(Succeed())

		Expect(stopped(env)).To(HaveLen(2))
	})

	It("shuts down an instance that never resolved", func() {
		env := newEnv(componenttest.NewDecl().Build())

		Expect(env.Model.Shutdown(testCtx())).To(Succeed())
		Expect(env.Model.Root().IsShutDown()).To(BeTrue())
		Expect(env.Model.Root().LifecycleState()).To(Equal(component.StateNew))
	})
})

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


package api_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/internal/componenttest"
	"github.com/united-manufacturing-hub/component-manager/pkg/api"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
)

var _ = Describe("Server", func() {
	var (
		env    *componenttest.Env
		server *api.Server
	)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var payload []byte

		if body != nil {
			var err error
			payload, err = json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
		}

		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		var err error
		env, err = componenttest.NewEnv(componenttest.NewDecl().
			Program().
			Child("a", decl.StartupLazy).
			Collection("coll", decl.DurabilityTransient).
			Build())
		Expect(err).NotTo(HaveOccurred())
		env.Add("a", componenttest.NewDecl().Program().Build())
		env.Add("d", componenttest.NewDecl().Program().Build())

		server = api.NewServer(env.Model, 0, zap.NewNop().Sugar())
	})

	It("reports health", func() {
		rec := do(http.MethodGet, "/healthz", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"ok"`))
	})

	It("serves the tree", func() {
		Expect(do(http.MethodPost, "/v1/instances/start", api.ActionRequest{Moniker: "/"}).Code).To(Equal(http.StatusNoContent))

		rec := do(http.MethodGet, "/v1/tree", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var snap component.InstanceSnapshot
		Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
		Expect(snap.Moniker).To(Equal("/"))
		Expect(snap.Running).To(BeTrue())
		Expect(snap.Children).To(HaveLen(1))
		Expect(snap.Children[0].Moniker).To(Equal("/a:0"))
	})

	It("starts and stops an instance by moniker", func() {
		Expect(do(http.MethodPost, "/v1/instances/start", api.ActionRequest{Moniker: "/"}).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodPost, "/v1/instances/start", api.ActionRequest{Moniker: "/a"}).Code).To(Equal(http.StatusNoContent))
		Expect(env.Runner.StartCount("/a")).To(Equal(1))

		rec := do(http.MethodGet, "/v1/instances?moniker=/a", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"startReason":"debug"`))

		Expect(do(http.MethodPost, "/v1/instances/stop", api.ActionRequest{Moniker: "/a"}).Code).To(Equal(http.StatusNoContent))
		Expect(env.Runner.Controller("/a").StopCount()).To(Equal(1))
	})

	It("creates and destroys dynamic children", func() {
		rec := do(http.MethodPost, "/v1/children", api.CreateChildRequest{
			Collection: "coll",
			Name:       "d",
			URL:        componenttest.URL("d"),
		})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var created api.CreateChildResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.Moniker).To(Equal("/coll:d:1"))

		Expect(do(http.MethodPost, "/v1/children", api.CreateChildRequest{
			Collection: "coll",
			Name:       "d",
			URL:        componenttest.URL("d"),
		}).Code).To(Equal(http.StatusConflict))

		Expect(do(http.MethodPost, "/v1/instances/destroy", api.ActionRequest{Moniker: "/coll:d"}).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodGet, "/v1/instances?moniker=/coll:d", nil).Code).To(Equal(http.StatusNotFound))
	})

	DescribeTable("maps failures to status codes",
		func(method, path string, body any, status int) {
			Expect(do(method, path, body).Code).To(Equal(status))
		},
		Entry("unknown instance", http.MethodGet, "/v1/instances?moniker=/nope", nil, http.StatusNotFound),
		Entry("malformed moniker", http.MethodGet, "/v1/instances?moniker=nope", nil, http.StatusBadRequest),
		Entry("malformed body", http.MethodPost, "/v1/instances/stop", "{", http.StatusBadRequest),
		Entry("unknown action", http.MethodPost, "/v1/instances/explode", api.ActionRequest{Moniker: "/"}, http.StatusNotFound),
		Entry("unknown collection", http.MethodPost, "/v1/children",
			api.CreateChildRequest{Collection: "nope", Name: "d", URL: componenttest.URL("d")}, http.StatusUnprocessableEntity),
	)

	It("refuses to start a shut down tree", func() {
		Expect(do(http.MethodPost, "/v1/instances/shutdown", api.ActionRequest{Moniker: "/"}).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodPost, "/v1/instances/start", api.ActionRequest{Moniker: "/"}).Code).To(Equal(http.StatusConflict))
	})
})

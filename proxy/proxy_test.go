package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/metrics"
	"github.com/kgourjau/BridgeAI/pkg/storage"
	"github.com/kgourjau/BridgeAI/pkg/storage/inmemory"
	"github.com/kgourjau/BridgeAI/pkg/upstream"
)

const (
	testToken           = "secret-token"
	testAdvertisedModel = "gpt-4o-mini"
)

// fakeUpstream is a Groq stand-in. Each test swaps the handler.
type fakeUpstream struct {
	server      *httptest.Server
	handler     atomic.Pointer[http.HandlerFunc]
	lastBody    atomic.Pointer[[]byte]
	modelsCalls atomic.Int32
}

func newFakeUpstream() *fakeUpstream {
	f := &fakeUpstream{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(&body)
		if r.URL.Path == "/openai/v1/models" {
			f.modelsCalls.Add(1)
		}
		(*f.handler.Load())(w, r)
	}))
	return f
}

func (f *fakeUpstream) handle(h http.HandlerFunc) {
	f.handler.Store(&h)
}

func (f *fakeUpstream) body() []byte {
	if b := f.lastBody.Load(); b != nil {
		return *b
	}
	return nil
}

// streamEvents returns a handler writing each event and flushing after it.
func streamEvents(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}
}

func newTestProxy(upstreamURL string, collector *metrics.Collector, opts ...func(*Config)) (*Proxy, *inmemory.Driver) {
	logger := zap.NewNop()
	driver := inmemory.NewDriver()

	client, err := upstream.NewClient(upstream.Config{
		BaseURL:      upstreamURL + "/openai/v1",
		APIKey:       "groq-key",
		DefaultModel: "llama-3.3-70b-versatile",
		Logger:       logger,
	})
	Expect(err).NotTo(HaveOccurred())

	cfg := Config{
		ListenAddr:  ":0",
		UpstreamURL: upstreamURL,
		Settings: Settings{
			BearerToken:     testToken,
			AdvertisedModel: testAdvertisedModel,
			StripFields:     []string{"x_groq"},
		},
		Metrics: collector,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := New(cfg, client, driver, logger)
	Expect(err).NotTo(HaveOccurred())
	return p, driver
}

// openStream sends a streamed chat request over a raw connection to the relay
// and returns the connection with the first event read off it.
func openStream(addr string) (net.Conn, string) {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())

	body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
	_, err = fmt.Fprintf(conn,
		"POST %s HTTP/1.1\r\nHost: relay\r\nAuthorization: Bearer %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
		RouteChatCompletions, testToken, len(body), body)
	Expect(err).NotTo(HaveOccurred())

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	event, err := bufio.NewReader(resp.Body).ReadString('\n')
	Expect(err).NotTo(HaveOccurred())
	return conn, event
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

var _ = Describe("Relay", func() {
	var (
		p      *Proxy
		driver *inmemory.Driver
		fake   *fakeUpstream
	)

	BeforeEach(func() {
		fake = newFakeUpstream()
		fake.handle(streamEvents("data: [DONE]\n\n"))
		p, driver = newTestProxy(fake.server.URL, metrics.NewCollector(prometheus.NewRegistry()))
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		fake.server.Close()
	})

	It("requires an upstream client and an advertised model", func() {
		_, err := New(Config{Settings: Settings{AdvertisedModel: "m"}}, nil, inmemory.NewDriver(), nil)
		Expect(err).To(HaveOccurred())

		client, err := upstream.NewClient(upstream.Config{BaseURL: fake.server.URL})
		Expect(err).NotTo(HaveOccurred())
		_, err = New(Config{}, client, inmemory.NewDriver(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("answers ping without a token", func() {
		resp, err := p.Handler().Test(httptest.NewRequest(http.MethodGet, RoutePing, nil), -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(readBody(resp)).To(MatchJSON(`{"status":"ok"}`))
	})

	Describe("bearer gate", func() {
		It("rejects a missing Authorization header with 401", func() {
			req := httptest.NewRequest(http.MethodPost, RouteChatCompletions, strings.NewReader(`{}`))
			resp, err := p.Handler().Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(readBody(resp)).To(MatchJSON(`{"error":"Authorization header is missing"}`))
		})

		It("rejects a header that is not a bearer token with 401", func() {
			req := httptest.NewRequest(http.MethodPost, RouteChatCompletions, strings.NewReader(`{}`))
			req.Header.Set("Authorization", "Token "+testToken)
			resp, err := p.Handler().Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(readBody(resp)).To(ContainSubstring("Bearer <token>"))
		})

		It("rejects a wrong token with 403", func() {
			req := httptest.NewRequest(http.MethodPost, RouteChatCompletions, strings.NewReader(`{}`))
			req.Header.Set("Authorization", "Bearer nope")
			resp, err := p.Handler().Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(readBody(resp)).To(MatchJSON(`{"error":"Invalid or expired token"}`))
		})

		It("answers 500 when no token is configured", func() {
			Expect(p.UpdateSettings(Settings{AdvertisedModel: testAdvertisedModel})).To(Succeed())

			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, `{}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(readBody(resp)).To(ContainSubstring("not configured"))
		})
	})

	Describe("streamed chat completions", func() {
		It("rewrites each chunk and preserves the event boundaries", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"model\":\"llama-3.3-70b-versatile\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}],\"x_groq\":{\"id\":\"req_1\"}}\n\n",
				"data: {\"id\":\"c1\",\"model\":\"llama-3.3-70b-versatile\",\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
				"data: [DONE]\n\n",
			))

			body := `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"Say hello"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))

			Expect(readBody(resp)).To(Equal(
				"data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
					"data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
					"data: [DONE]\n\n",
			))
		})

		It("drops the caller's model so the upstream default applies", func() {
			body := `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			Expect(gjson.GetBytes(fake.body(), "model").String()).To(Equal("llama-3.3-70b-versatile"))
			Expect(gjson.GetBytes(fake.body(), "messages.0.content").String()).To(Equal("hi"))
		})

		It("forwards the caller's model in passthrough mode", func() {
			Expect(p.UpdateSettings(Settings{
				BearerToken:      testToken,
				AdvertisedModel:  testAdvertisedModel,
				PassthroughModel: true,
			})).To(Succeed())

			body := `{"model":"mixtral-8x7b","stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			Expect(gjson.GetBytes(fake.body(), "model").String()).To(Equal("mixtral-8x7b"))
		})

		It("reassembles events split across upstream writes", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"choi",
				"ces\":[]}\n",
				"\ndata: [DO",
				"NE]\n\n",
			))

			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(readBody(resp)).To(Equal(
				"data: {\"id\":\"c1\",\"choices\":[],\"model\":\"gpt-4o-mini\"}\n\n" +
					"data: [DONE]\n\n",
			))
		})

		It("ends a malformed stream with one error event", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\"}\n\n",
				"data: {not json\n\n",
				"data: {\"id\":\"c2\"}\n\n",
			))

			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			out := readBody(resp)
			Expect(out).To(HavePrefix("data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\"}\n\n"))
			Expect(out).To(HaveSuffix("\"type\":\"malformed_chunk\"}}\n\n"))
			Expect(out).NotTo(ContainSubstring("c2"))
			Expect(out).NotTo(ContainSubstring("[DONE]"))
		})

		It("relays an upstream error status before streaming starts", func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
			})

			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(gjson.Get(readBody(resp), "error").String()).To(ContainSubstring("429"))
		})

		It("writes the exchange to the transcript", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n",
				"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\" world!\"}}]}\n\n",
				"data: [DONE]\n\n",
			))

			body := `{"stream":true,"messages":[{"role":"user","content":"Say hello"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			// Drain the worker pool to ensure async storage completes
			p.Close()
			p = nil

			entries, err := driver.List(GinkgoT().Context(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Role).To(Equal("user"))
			Expect(entries[0].Message).To(ContainSubstring("Say hello"))
			Expect(entries[1].Role).To(Equal("assistant"))
			Expect(entries[1].Message).To(Equal("Hello world!"))
		})
	})

	Describe("client disconnects", func() {
		var (
			cancelled chan struct{}
			addr      string
		)

		// serve restarts the relay on a real listener.
		serve := func(opts ...func(*Config)) {
			p.Close()
			p, driver = newTestProxy(fake.server.URL, nil, opts...)

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			addr = listener.Addr().String()
			go func() { _ = p.RunWithListener(listener) }()
		}

		BeforeEach(func() {
			cancelled = make(chan struct{})
		})

		It("cancels the upstream request when the client hangs up mid-stream", func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				ticker := time.NewTicker(10 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-r.Context().Done():
						close(cancelled)
						return
					case <-ticker.C:
						fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[]}\n\n")
						w.(http.Flusher).Flush()
					}
				}
			})
			serve()

			conn, event := openStream(addr)
			Expect(event).To(HavePrefix(`data: {"id":"c1"`))
			Expect(conn.Close()).To(Succeed())

			Eventually(cancelled).WithTimeout(5 * time.Second).Should(BeClosed())
		})

		It("notices a hang up while the upstream is silent", func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[]}\n\n")
				w.(http.Flusher).Flush()
				<-r.Context().Done()
				close(cancelled)
			})
			serve(func(c *Config) { c.KeepAliveInterval = 20 * time.Millisecond })

			conn, event := openStream(addr)
			Expect(event).To(HavePrefix(`data: {"id":"c1"`))
			Expect(conn.Close()).To(Succeed())

			Eventually(cancelled).WithTimeout(5 * time.Second).Should(BeClosed())
		})

		It("interleaves keep-alive comments while the upstream pauses", func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"id\":\"c1\"}\n\n")
				w.(http.Flusher).Flush()
				time.Sleep(100 * time.Millisecond)
				fmt.Fprint(w, "data: [DONE]\n\n")
			})
			p.Close()
			p, driver = newTestProxy(fake.server.URL, nil, func(c *Config) { c.KeepAliveInterval = 20 * time.Millisecond })

			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())

			out := readBody(resp)
			Expect(out).To(ContainSubstring("data: {\"id\":\"c1\",\"model\":\"gpt-4o-mini\"}\n\n"))
			Expect(out).To(ContainSubstring(": keep-alive\n\n"))
			Expect(out).To(HaveSuffix("data: [DONE]\n\n"))
		})

		It("hands a finished stream to the transcript before Close returns", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n\n",
				"data: [DONE]\n\n",
			))
			serve()

			conn, _ := openStream(addr)
			defer conn.Close()

			Expect(p.Close()).To(Succeed())
			p = nil

			entries, err := driver.List(GinkgoT().Context(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[1].Message).To(Equal("late"))
		})
	})

	Describe("request validation", func() {
		It("rejects an empty body", func() {
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, ""), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readBody(resp)).To(MatchJSON(`{"error":"messages is required"}`))
		})

		It("rejects a body without messages", func() {
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, `{"stream":true}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a body that is not JSON", func() {
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, `hello`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("non-streamed chat completions", func() {
		It("returns the completion in the OpenAI layout under the advertised model", func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{
					"id":"chatcmpl-9","object":"chat.completion","created":1700000000,
					"model":"llama-3.3-70b-versatile",
					"choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}],
					"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6},
					"x_groq":{"id":"req_9"}
				}`)
			})

			body := `{"messages":[{"role":"user","content":"2+2?"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))

			out := readBody(resp)
			Expect(gjson.Get(out, "model").String()).To(Equal(testAdvertisedModel))
			Expect(gjson.Get(out, "object").String()).To(Equal("chat.completion"))
			Expect(gjson.Get(out, "choices.0.message.content").String()).To(Equal("4"))
			Expect(gjson.Get(out, "usage.total_tokens").Int()).To(Equal(int64(6)))
			Expect(gjson.GetBytes(fake.body(), "stream").Bool()).To(BeFalse())
		})
	})

	Describe("chat message", func() {
		It("wraps the message in a conversation and streams the reply", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"Hi!\"}}]}\n\n",
				"data: [DONE]\n\n",
			))

			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatMessage, `{"message":"hello"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(HaveSuffix("data: [DONE]\n\n"))

			sent := fake.body()
			Expect(gjson.GetBytes(sent, "messages.#").Int()).To(Equal(int64(2)))
			Expect(gjson.GetBytes(sent, "messages.0.role").String()).To(Equal("system"))
			Expect(gjson.GetBytes(sent, "messages.1.content").String()).To(Equal("hello"))
			Expect(gjson.GetBytes(sent, "stream").Bool()).To(BeTrue())

			p.Close()
			p = nil

			entries, err := driver.List(GinkgoT().Context(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Message).To(Equal("hello"))
			Expect(entries[1].Message).To(Equal("Hi!"))
		})

		It("accepts prompt as an alias", func() {
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatMessage, `{"prompt":"hello"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			readBody(resp)
		})

		It("rejects a request without a message", func() {
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatMessage, `{}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readBody(resp)).To(MatchJSON(`{"error":"message or prompt is required"}`))
		})
	})

	Describe("models", func() {
		BeforeEach(func() {
			fake.handle(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"llama-3.3-70b-versatile"}]}`)
			})
		})

		It("serves the upstream list from cache after the first call", func() {
			for range 3 {
				resp, err := p.Handler().Test(authedRequest(http.MethodGet, RouteModels, ""), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(gjson.Get(readBody(resp), "data.0.id").String()).To(Equal("llama-3.3-70b-versatile"))
			}

			Expect(fake.modelsCalls.Load()).To(Equal(int32(1)))
		})
	})

	Describe("chat logs", func() {
		It("lists the transcript oldest first", func() {
			fake.handle(streamEvents(
				"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"pong\"}}]}\n\n",
				"data: [DONE]\n\n",
			))

			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatMessage, `{"message":"ping"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			var logs struct {
				Logs []struct {
					Role    string `json:"role"`
					Source  string `json:"source"`
					Message string `json:"message"`
				} `json:"logs"`
			}
			Eventually(func(g Gomega) {
				resp, err := p.Handler().Test(authedRequest(http.MethodGet, RouteChatLogs, ""), -1)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(json.Unmarshal([]byte(readBody(resp)), &logs)).To(Succeed())
				g.Expect(logs.Logs).To(HaveLen(2))
			}).Should(Succeed())

			Expect(logs.Logs[0].Role).To(Equal("user"))
			Expect(logs.Logs[0].Message).To(Equal("ping"))
			Expect(logs.Logs[1].Role).To(Equal("assistant"))
			Expect(logs.Logs[1].Source).To(ContainSubstring("AI"))
			Expect(logs.Logs[1].Message).To(Equal("pong"))
		})

		It("honours the limit parameter", func() {
			Expect(driver.Put(GinkgoT().Context(),
				storage.NewEntry("req-1", storage.RoleUser, storage.RoleUser, "first"),
				storage.NewEntry("req-1", storage.RoleAssistant, "AI", "second"),
			)).To(Succeed())

			resp, err := p.Handler().Test(authedRequest(http.MethodGet, RouteChatLogs+"?limit=1", ""), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			out := readBody(resp)
			Expect(gjson.Get(out, "logs.#").Int()).To(Equal(int64(1)))
			Expect(gjson.Get(out, "logs.0.message").String()).To(Equal("second"))
		})
	})

	Describe("metrics", func() {
		It("counts requests and streams", func() {
			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)

			resp, err = p.Handler().Test(httptest.NewRequest(http.MethodGet, RouteMetrics, nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			out := readBody(resp)
			Expect(out).To(ContainSubstring("bridge_requests_total"))
			Expect(out).To(ContainSubstring(`outcome="sentinel"`))
		})
	})

	Describe("UpdateSettings", func() {
		It("rejects settings without an advertised model", func() {
			Expect(p.UpdateSettings(Settings{BearerToken: testToken})).NotTo(Succeed())
		})

		It("applies a new advertised model to later requests", func() {
			fake.handle(streamEvents("data: {\"id\":\"c1\"}\n\n", "data: [DONE]\n\n"))
			Expect(p.UpdateSettings(Settings{BearerToken: testToken, AdvertisedModel: "gpt-4.1"})).To(Succeed())

			body := `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`
			resp, err := p.Handler().Test(authedRequest(http.MethodPost, RouteChatCompletions, body), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(readBody(resp)).To(HavePrefix(`data: {"id":"c1","model":"gpt-4.1"}`))
		})
	})
})

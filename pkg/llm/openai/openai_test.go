package openai_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kgourjau/BridgeAI/pkg/llm"
	"github.com/kgourjau/BridgeAI/pkg/llm/openai"
)

var _ = Describe("OpenAI format", func() {
	Describe("ParseRequest", func() {
		It("parses a simple streaming request", func() {
			payload := []byte(`{
				"model": "gpt-4o-mini",
				"stream": true,
				"messages": [
					{"role": "system", "content": "You are a helpful assistant."},
					{"role": "user", "content": "Hello"}
				]
			}`)

			req, err := openai.ParseRequest(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Model).To(Equal("gpt-4o-mini"))
			Expect(req.Streaming()).To(BeTrue())
			Expect(req.Messages).To(HaveLen(2))
			Expect(req.Messages[0].GetText()).To(Equal("You are a helpful assistant."))
			Expect(req.LastUserText()).To(Equal("Hello"))
			Expect(req.Validate()).To(Succeed())
			Expect([]byte(req.RawRequest)).To(Equal(payload))
		})

		It("treats a missing stream flag as non-streaming", func() {
			req, err := openai.ParseRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Streaming()).To(BeFalse())
		})

		It("fails validation without messages", func() {
			req, err := openai.ParseRequest([]byte(`{"model":"x","messages":[]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Validate()).To(MatchError(llm.ErrNoMessages))
		})

		It("parses multimodal content parts", func() {
			req, err := openai.ParseRequest([]byte(`{"messages":[{"role":"user","content":[
				{"type":"text","text":"What is this?"},
				{"type":"image_url","image_url":{"url":"https://example.com/cat.png"}}
			]}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Messages[0].Content).To(HaveLen(2))
			Expect(req.Messages[0].Content[1].Type).To(Equal("image"))
			Expect(req.Messages[0].Content[1].ImageURL).To(Equal("https://example.com/cat.png"))
			Expect(req.LastUserText()).To(Equal("What is this?"))
		})

		It("parses tool calls and tool results", func() {
			req, err := openai.ParseRequest([]byte(`{"messages":[
				{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]},
				{"role":"tool","tool_call_id":"call_1","content":"42"}
			]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Messages[0].Content).To(HaveLen(1))
			Expect(req.Messages[0].Content[0].ToolName).To(Equal("lookup"))
			Expect(req.Messages[1].Content[0].Type).To(Equal("tool_result"))
			Expect(req.Messages[1].GetText()).To(Equal("42"))
		})

		It("normalizes a string stop sequence", func() {
			req, err := openai.ParseRequest([]byte(`{"messages":[{"role":"user","content":"hi"}],"stop":"END"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Stop).To(Equal([]string{"END"}))
		})

		It("rejects numeric content", func() {
			_, err := openai.ParseRequest([]byte(`{"messages":[{"role":"user","content":42}]}`))
			Expect(err).To(MatchError(ContainSubstring("message 0")))
		})

		It("rejects invalid JSON", func() {
			_, err := openai.ParseRequest([]byte(`{"messages":`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseResponse", func() {
		It("parses the first choice and usage", func() {
			resp, err := openai.ParseResponse([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1700000000,
				"model": "llama-3.3-70b-versatile",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi!"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ID).To(Equal("chatcmpl-1"))
			Expect(resp.Message.GetText()).To(Equal("Hi!"))
			Expect(resp.StopReason).To(Equal("stop"))
			Expect(resp.Usage.TotalTokens).To(Equal(7))
			Expect(resp.CreatedAt.Unix()).To(Equal(int64(1700000000)))
		})

		It("tolerates an empty choice list", func() {
			resp, err := openai.ParseResponse([]byte(`{"id":"x","choices":[]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Message.GetText()).To(BeEmpty())
		})
	})

	Describe("ParseStreamChunk", func() {
		It("extracts the delta content", func() {
			chunk, err := openai.ParseStreamChunk([]byte(`{"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.ID).To(Equal("c"))
			Expect(chunk.Content).To(Equal("Hel"))
			Expect(chunk.FinishReason).To(BeEmpty())
			Expect(chunk.Usage).To(BeNil())
		})

		It("extracts the finish reason and usage", func() {
			chunk, err := openai.ParseStreamChunk([]byte(`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.FinishReason).To(Equal("stop"))
			Expect(chunk.Usage).To(Equal(&llm.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}))
		})

		It("rejects invalid JSON", func() {
			_, err := openai.ParseStreamChunk([]byte(`{`))
			Expect(err).To(HaveOccurred())
		})
	})
})

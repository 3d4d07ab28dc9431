package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/llm"
	"github.com/kgourjau/BridgeAI/pkg/llm/openai"
	"github.com/kgourjau/BridgeAI/pkg/sse"
	"github.com/kgourjau/BridgeAI/pkg/upstream"
	"github.com/kgourjau/BridgeAI/pkg/utils"
	"github.com/kgourjau/BridgeAI/proxy/worker"
)

const (
	// chatMessageSystemPrompt opens every conversation started on /chat/message.
	chatMessageSystemPrompt = "You are a helpful assistant."

	maxLoggedBody = 256
)

// handleChatCompletions serves the OpenAI chat completions endpoint. The
// caller's body is forwarded as is, apart from the model which is dropped so
// the upstream default applies (unless passthrough is enabled).
func (p *Proxy) handleChatCompletions(c *fiber.Ctx) error {
	startTime := time.Now()
	settings := p.settings.Load()
	log := p.requestLogger(c)

	// fasthttp reuses the request body once the handler returns; the stream
	// outlives it.
	body := bytes.Clone(c.Body())

	if len(bytes.TrimSpace(body)) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: llm.ErrNoMessages.Error()})
	}

	parsedReq, err := openai.ParseRequest(body)
	if err != nil {
		log.Warn("failed to parse request",
			zap.Error(err),
			zap.String("body", utils.TruncateBytes(body, maxLoggedBody)),
		)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "request body must be a chat completion JSON object"})
	}
	if err := parsedReq.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	log.Debug("parsed request",
		zap.String("model", parsedReq.Model),
		zap.Int("message_count", len(parsedReq.Messages)),
		zap.Bool("stream", parsedReq.Streaming()),
	)

	payload := body
	if !settings.PassthroughModel && gjson.GetBytes(payload, "model").Exists() {
		payload, err = sjson.DeleteBytes(payload, "model")
		if err != nil {
			log.Error("failed to drop inbound model", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "An internal error has occurred."})
		}
	}

	ex := &llm.Exchange{
		RequestID: requestID(c),
		Route:     RouteChatCompletions,
		Model:     settings.AdvertisedModel,
		Request:   parsedReq,
		Streamed:  parsedReq.Streaming(),
		StartedAt: startTime,
	}

	if parsedReq.Streaming() {
		return p.handleStreaming(c, settings, payload, worker.Job{Exchange: ex})
	}

	return p.handleNonStreaming(c, settings, payload, ex)
}

// chatMessageRequest is the body of /chat/message.
type chatMessageRequest struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
}

// handleChatMessage starts a one-shot streamed conversation from a single
// user message.
func (p *Proxy) handleChatMessage(c *fiber.Ctx) error {
	startTime := time.Now()
	settings := p.settings.Load()

	var in chatMessageRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "message or prompt is required"})
	}

	text := in.Message
	if text == "" {
		text = in.Prompt
	}
	if strings.TrimSpace(text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "message or prompt is required"})
	}

	payload := []byte(`{"messages":[]}`)
	var err error
	for _, msg := range []struct{ role, content string }{
		{"system", chatMessageSystemPrompt},
		{"user", text},
	} {
		payload, err = sjson.SetBytes(payload, "messages.-1", map[string]string{
			"role":    msg.role,
			"content": msg.content,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "An internal error has occurred."})
		}
	}

	ex := &llm.Exchange{
		RequestID: requestID(c),
		Route:     RouteChatMessage,
		Model:     settings.AdvertisedModel,
		Request: &llm.ChatRequest{
			Messages: []llm.Message{
				llm.NewTextMessage("system", chatMessageSystemPrompt),
				llm.NewTextMessage("user", text),
			},
			RawRequest: payload,
		},
		Streamed:  true,
		StartedAt: startTime,
	}

	return p.handleStreaming(c, settings, payload, worker.Job{Exchange: ex, Prompt: text})
}

// handleStreaming opens the upstream stream and hands the rewrite loop to a
// goroutine feeding the client response.
func (p *Proxy) handleStreaming(c *fiber.Ctx, settings *snapshot, payload []byte, job worker.Job) error {
	log := p.requestLogger(c)

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the stream is relayed
	// asynchronously and needs the upstream connection to remain open.
	ctx, cancel := context.WithCancel(upstream.WithHeaders(context.Background(), p.headerHandler.UpstreamRequestHeaders(c)))

	body, err := p.upstream.StreamChat(ctx, payload)
	if err != nil {
		cancel()
		return p.upstreamError(c, log, err)
	}

	p.headerHandler.SetStreamResponseHeaders(c)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter only flushes into an internal buffered pipe, so
	// events would pile up in memory. With io.Pipe, pw.Write blocks until
	// fasthttp's writeBodyChunked has consumed the bytes and flushed them to
	// the socket, which gives per-event delivery and backpressure on the
	// upstream read loop.
	pr, pw := io.Pipe()
	p.streams.Add(1)
	go func() {
		defer p.streams.Done()
		p.relayStream(body, pw, &disconnect{cancel: cancel}, settings, job, log)
	}()

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// relayStream runs the SSE transformer from the upstream body into the pipe,
// then enqueues the exchange for the transcript.
func (p *Proxy) relayStream(body io.ReadCloser, pw *io.PipeWriter, gone *disconnect, settings *snapshot, job worker.Job, log *zap.Logger) {
	// Closing the upstream body also cancels the upstream request, which is
	// what stops Groq when the client hangs up.
	defer body.Close()
	defer gone.cancel()

	var (
		reply         strings.Builder
		usage         *llm.Usage
		upstreamModel string
	)

	// The chunk is inspected before the policy rewrites it so the transcript
	// keeps what the upstream actually said.
	rewriter := sse.RewriterFunc(func(data []byte) ([]byte, error) {
		if parsed, err := openai.ParseStreamChunk(data); err == nil {
			reply.WriteString(parsed.Content)
			if parsed.Usage != nil {
				usage = parsed.Usage
			}
			if upstreamModel == "" {
				upstreamModel = parsed.Model
			}
		}
		return settings.policy.Rewrite(data)
	})

	p.metrics.StreamStarted()
	transformer := sse.NewTransformer(body, rewriter,
		sse.WithMaxEventSize(p.config.MaxEventSize),
		sse.WithHooks(sse.Hooks{
			OnDone: func(res sse.Result) {
				outcome := res.Outcome
				if gone.tripped() {
					outcome = sse.OutcomeAborted
				}
				p.metrics.StreamFinished(outcome.String(), res.Events, res.Discarded)
			},
		}),
	)

	stopKeepAlive := p.keepAlive(pw, gone)
	res, err := transformer.Pipe(pw)
	stopKeepAlive()

	// A keep-alive found the client gone and cancelled the upstream, so the
	// read error above is a consequence of the disconnect.
	if gone.tripped() {
		res.Outcome = sse.OutcomeAborted
		err = &sse.DownstreamWriteError{Err: gone.err}
	}

	switch {
	case err == nil:
		if res.Discarded > 0 {
			log.Warn("upstream ended mid-event, trailing fragment dropped",
				zap.Int("discarded_bytes", res.Discarded),
			)
		}
		_ = pw.Close()
	case isDownstream(err):
		log.Info("client went away, upstream cancelled", zap.Error(err))
		_ = pw.CloseWithError(err)
	default:
		if errors.Is(err, upstream.ErrIdleTimeout) {
			p.metrics.RecordUpstreamError("idle_timeout")
		} else {
			p.metrics.RecordUpstreamError("stream")
		}
		fields := []zap.Field{zap.Error(err), zap.Int("events", res.Events)}
		var malformed *sse.MalformedChunkError
		if errors.As(err, &malformed) {
			fields = append(fields, zap.String("chunk", utils.TruncateBytes(malformed.Line, maxLoggedBody)))
		}
		log.Error("stream aborted", fields...)
		_ = pw.Close()
	}

	log.Debug("streaming complete",
		zap.String("outcome", res.Outcome.String()),
		zap.Int("events", res.Events),
		zap.Int("reply_len", reply.Len()),
	)

	ex := job.Exchange
	ex.Reply = reply.String()
	ex.Usage = usage
	ex.UpstreamModel = upstreamModel
	ex.Outcome = res.Outcome.String()
	ex.Duration = time.Since(ex.StartedAt)

	p.workerPool.Enqueue(job)
}

// handleNonStreaming relays a single completion, reshaped to the OpenAI layout.
func (p *Proxy) handleNonStreaming(c *fiber.Ctx, settings *snapshot, payload []byte, ex *llm.Exchange) error {
	log := p.requestLogger(c)
	ctx := upstream.WithHeaders(c.UserContext(), p.headerHandler.UpstreamRequestHeaders(c))

	raw, err := p.upstream.Complete(ctx, payload)
	if err != nil {
		return p.upstreamError(c, log, err)
	}

	formatted, err := openai.FormatCompletion(raw, settings.AdvertisedModel)
	if err != nil {
		log.Error("failed to format upstream completion", zap.Error(err))
		p.metrics.RecordUpstreamError("malformed")
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream returned an invalid completion"})
	}

	if parsedResp, err := openai.ParseResponse(raw); err == nil {
		ex.UpstreamModel = parsedResp.Model
		ex.Usage = parsedResp.Usage
		ex.Reply = parsedResp.Message.GetText()
	} else {
		log.Warn("failed to parse upstream completion", zap.Error(err))
	}
	ex.Outcome = "complete"
	ex.Duration = time.Since(ex.StartedAt)

	// The transcript keeps the completion exactly as the client received it.
	p.workerPool.Enqueue(worker.Job{Exchange: ex, Answer: string(formatted)})

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(formatted)
}

// upstreamError answers a failed upstream call before any byte was relayed.
func (p *Proxy) upstreamError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var reqErr *upstream.UpstreamRequestError
	if errors.As(err, &reqErr) {
		p.metrics.RecordUpstreamError("status")
		return c.Status(reqErr.StatusCode).JSON(llm.ErrorResponse{Error: reqErr.Error()})
	}

	p.metrics.RecordUpstreamError("connect")
	log.Error("upstream request failed", zap.Error(err))
	return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
}

func isDownstream(err error) bool {
	var dw *sse.DownstreamWriteError
	return errors.As(err, &dw)
}

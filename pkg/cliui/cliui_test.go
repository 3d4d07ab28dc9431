package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kgourjau/BridgeAI/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("runs fn and prints the message with a success mark", func() {
		var buf bytes.Buffer
		ran := false

		err := cliui.Step(&buf, "Pruning transcript", func() error {
			ran = true
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(ran).To(BeTrue())
		Expect(buf.String()).To(ContainSubstring("Pruning transcript"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})

	It("returns the error of fn with a failure mark", func() {
		var buf bytes.Buffer

		err := cliui.Step(&buf, "Connecting", func() error {
			return errors.New("connection refused")
		})

		Expect(err).To(MatchError("connection refused"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})

	It("does not animate when the writer is not a terminal", func() {
		var buf bytes.Buffer

		Expect(cliui.Step(&buf, "Waiting", func() error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})).To(Succeed())

		Expect(strings.Count(buf.String(), "Waiting")).To(Equal(1))
	})
})

var _ = Describe("IsTerminal", func() {
	It("is false for buffers", func() {
		Expect(cliui.IsTerminal(&bytes.Buffer{})).To(BeFalse())
	})
})

var _ = Describe("Table", func() {
	It("aligns the keys", func() {
		var buf bytes.Buffer
		t := &cliui.Table{}
		t.Row("relay.listen", ":7000")
		t.Row("models.cache_ttl", "5m")
		t.Render(&buf)

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(ContainSubstring("relay.listen      :7000"))
		Expect(lines[1]).To(ContainSubstring("models.cache_ttl  5m"))
	})
})

var _ = Describe("Header", func() {
	It("prints the label and detail", func() {
		var buf bytes.Buffer
		cliui.Header(&buf, "Config file:", "/tmp/.bridge/config.toml")
		Expect(buf.String()).To(ContainSubstring("Config file:"))
		Expect(buf.String()).To(ContainSubstring("/tmp/.bridge/config.toml"))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below one second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("MaskSecret", func() {
	It("keeps the last four characters", func() {
		Expect(cliui.MaskSecret("gsk_abcdef1234")).To(Equal("**********1234"))
	})

	It("masks short values entirely", func() {
		Expect(cliui.MaskSecret("abc")).To(Equal("***"))
	})

	It("leaves empty values empty", func() {
		Expect(cliui.MaskSecret("")).To(BeEmpty())
	})
})

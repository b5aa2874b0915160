package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("Step", func() {
		It("returns fn's result and prints the final mark", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "Saving", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark + " Saving"))

			buf.Reset()
			boom := errors.New("boom")
			Expect(cliui.Step(&buf, "Saving", func() error { return boom })).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark + " Saving"))
		})
	})

	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("KeyValue", func() {
		It("marks empty values", func() {
			var buf bytes.Buffer
			cliui.KeyValue(&buf, 8, "driver", "")
			Expect(buf.String()).To(ContainSubstring("<not set>"))
			Expect(buf.String()).To(ContainSubstring("driver"))
		})
	})
})

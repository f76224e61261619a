package logger

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var entryTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func encodeJSON(cfg zap.Config) map[string]interface{} {
	buf, err := zapcore.NewJSONEncoder(cfg.EncoderConfig).EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    entryTime,
		Message: "[Controller][IngestEvent] payment recorded",
	}, nil)
	Expect(err).NotTo(HaveOccurred())
	defer buf.Free()

	out := map[string]interface{}{}
	Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
	return out
}

var _ = Describe("Logger Environment", func() {
	Describe("#newProductionLoggerConfig", func() {
		It("writes json at info level with an ISO8601 timestamp field", func() {
			cfg := newProductionLoggerConfig()

			Expect(cfg.Level.Level()).To(Equal(zap.InfoLevel))
			Expect(cfg.Encoding).To(Equal("json"))
			Expect(cfg.DisableCaller).To(BeFalse())
			Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))

			out := encodeJSON(cfg)
			Expect(out).To(HaveKeyWithValue("timestamp", "2026-03-14T09:26:53.000Z"))
			Expect(out).NotTo(HaveKey("ts"))
			Expect(out).To(HaveKeyWithValue("level", "info"))
		})
	})

	Describe("#newStagingLoggerConfig", func() {
		It("keeps the production encoding without caller or stacktrace", func() {
			cfg := newStagingLoggerConfig()

			Expect(cfg.Level.Level()).To(Equal(zap.InfoLevel))
			Expect(cfg.Development).To(BeFalse())
			Expect(cfg.DisableCaller).To(BeTrue())
			Expect(cfg.DisableStacktrace).To(BeTrue())
			Expect(encodeJSON(cfg)).To(HaveKeyWithValue("timestamp", "2026-03-14T09:26:53.000Z"))
		})
	})

	Describe("#newDevelopmentLoggerConfig", func() {
		It("writes coloured console lines to stdout", func() {
			cfg := newDevelopmentLoggerConfig()

			Expect(cfg.Level.Level()).To(Equal(zap.DebugLevel))
			Expect(cfg.Encoding).To(Equal("console"))
			Expect(cfg.DisableCaller).To(BeTrue())
			Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))

			buf, err := zapcore.NewConsoleEncoder(cfg.EncoderConfig).EncodeEntry(zapcore.Entry{
				Level:   zapcore.WarnLevel,
				Time:    entryTime,
				Message: "[server.NewApp] using the simulated exchange",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			defer buf.Free()
			Expect(buf.String()).To(ContainSubstring("\x1b[33mWARN\x1b[0m"))
			Expect(buf.String()).To(ContainSubstring("using the simulated exchange"))
		})
	})

	Describe("#newTestLoggerConfig", func() {
		It("discards every write", func() {
			cfg := newTestLoggerConfig()

			Expect(cfg.OutputPaths).To(BeEmpty())
			Expect(cfg.ErrorOutputPaths).To(BeEmpty())

			l, err := cfg.Build()
			Expect(err).NotTo(HaveOccurred())
			l.Info("dropped")
			Expect(l.Sync()).To(Succeed())
		})
	})
})

package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/rsclarke/hookrelay/internal/config"
)

var _ = Describe("Configuration", Ordered, func() {
	writeConfig := func(content string) string {
		tmpFile, err := os.CreateTemp("", "hookrelay-*.yaml")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.Remove(tmpFile.Name()) })

		_, err = tmpFile.WriteString(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(tmpFile.Close()).To(Succeed())
		return tmpFile.Name()
	}

	AfterEach(func() {
		config.Spec.Reset()
		pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
		_ = os.Unsetenv("HOOKRELAY_LOG_LEVEL")
		_ = os.Unsetenv("HOOKRELAY_RELAY_UPSTREAMS")
		_ = os.Unsetenv("HOOKRELAY_CAPTURE_PORT")
	})

	Describe("Spec", func() {
		It("should have defaults", func() {
			Expect(config.Spec.LoadConfiguration("")).To(Succeed())

			cfg := config.Load()
			Expect(cfg.DBPath).To(Equal("hookrelay.db"))
			Expect(cfg.LogLevel).To(Equal("info"))
			Expect(cfg.HTTPPort).To(Equal(8080))
			Expect(cfg.APIPort).To(Equal(8081))
			Expect(cfg.Relay.PathTemplate).To(Equal("/script/{eventName}"))
			Expect(cfg.Relay.EventSuffix).To(Equal("_relayed"))
			Expect(cfg.Relay.Timeout).To(Equal(30 * time.Second))
			Expect(cfg.Relay.Upstreams).To(BeEmpty())
			Expect(config.Validate()).To(Succeed())
		})

		It("should load values from file", func() {
			path := writeConfig(`
log-level: error
capture:
  port: 9090
relay:
  upstreams:
    - https://a.example.com
    - https://b.example.com
`)
			Expect(config.Spec.LoadConfiguration(path)).To(Succeed())

			cfg := config.Load()
			Expect(cfg.LogLevel).To(Equal("error"))
			Expect(cfg.HTTPPort).To(Equal(9090))
			Expect(cfg.Relay.Upstreams).To(Equal([]string{"https://a.example.com", "https://b.example.com"}))
		})

		It("should override file with environment variable", func() {
			path := writeConfig("log-level: error\n")
			Expect(os.Setenv("HOOKRELAY_LOG_LEVEL", "warn")).To(Succeed())

			Expect(config.Spec.LoadConfiguration(path)).To(Succeed())
			Expect(config.Spec.GetString("log-level")).To(Equal("warn"))
		})

		It("should split comma-separated lists from the environment", func() {
			Expect(os.Setenv("HOOKRELAY_RELAY_UPSTREAMS", " https://a.example.com ,,https://b.example.com")).To(Succeed())

			Expect(config.Spec.LoadConfiguration("")).To(Succeed())
			Expect(config.Spec.GetStringSlice("relay.upstreams")).To(
				Equal([]string{"https://a.example.com", "https://b.example.com"}))
		})

		It("should override environment with flag", func() {
			Expect(os.Setenv("HOOKRELAY_CAPTURE_PORT", "9000")).To(Succeed())

			config.Spec.AddFlag(pflag.CommandLine, "port", "capture.port")
			Expect(pflag.CommandLine.Set("port", "9100")).To(Succeed())

			Expect(config.Spec.LoadConfiguration("")).To(Succeed())
			Expect(config.Spec.GetInt("capture.port")).To(Equal(9100))
		})

		It("should fail on a missing config file", func() {
			Expect(config.Spec.LoadConfiguration("/nonexistent/hookrelay.yaml")).NotTo(Succeed())
		})

		It("should panic on an unknown flag binding", func() {
			Expect(func() {
				config.Spec.AddFlag(pflag.CommandLine, "nope", "no.such.key")
			}).To(Panic())
		})
	})

	Describe("Validate", func() {
		BeforeEach(func() {
			Expect(config.Spec.LoadConfiguration("")).To(Succeed())
		})

		DescribeTable("rejects invalid values",
			func(key string, value any) {
				config.Spec.Set(key, value)
				Expect(config.Validate()).NotTo(Succeed())
			},
			Entry("log level", "log-level", "loud"),
			Entry("log format", "log-format", "xml"),
			Entry("capture port", "capture.port", 0),
			Entry("api port", "api.port", 70000),
			Entry("https port", "capture.https-port", -1),
			Entry("body limit", "capture.max-body-bytes", 0),
			Entry("in-flight limit", "relay.max-in-flight", 0),
			Entry("relay timeout", "relay.timeout-seconds", -5),
			Entry("path template", "relay.path-template", "script/{eventName}"),
			Entry("relative upstream", "relay.upstreams", []string{"example.com/hook"}),
			Entry("ftp upstream", "relay.upstreams", []string{"ftp://example.com"}),
		)

		It("requires tls cert and key together", func() {
			config.Spec.Set("tls.cert", "/etc/cert.pem")
			Expect(config.Validate()).NotTo(Succeed())

			config.Spec.Set("tls.key", "/etc/key.pem")
			Expect(config.Validate()).To(Succeed())
		})

		It("requires an https port for acme domains", func() {
			config.Spec.Set("acme.domains", []string{"hooks.example.com"})
			Expect(config.Validate()).NotTo(Succeed())

			config.Spec.Set("capture.https-port", 8443)
			Expect(config.Validate()).To(Succeed())
		})
	})
})

var _ = Describe("ParseList", func() {
	It("should parse comma-separated strings", func() {
		Expect(config.ParseList("a, b,,c")).To(Equal([]string{"a", "b", "c"}))
	})

	It("should accept YAML lists", func() {
		Expect(config.ParseList([]any{"a", " b "})).To(Equal([]string{"a", "b"}))
	})

	It("should treat nil as empty", func() {
		Expect(config.ParseList(nil)).To(BeEmpty())
	})

	It("should reject non-string items", func() {
		_, err := config.ParseList([]any{"a", 1})
		Expect(err).To(HaveOccurred())
	})
})

package archive_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rsclarke/hookrelay/internal/archive"
)

const (
	testAccessKey = "AKIAHOOKRELAYTEST"
	//nolint:gosec // Test credentials
	testSecretKey = "hookrelay-test-secret"
)

var _ = Describe("ObjectKey", func() {
	It("partitions by UTC date", func() {
		t := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
		Expect(archive.ObjectKey("exports", t)).To(Equal("exports/2024/05/02/logs-20240502T013000Z.csv"))
	})

	It("omits an empty prefix", func() {
		t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		Expect(archive.ObjectKey("", t)).To(Equal("2024/05/01/logs-20240501T120000Z.csv"))
	})
})

var _ = Describe("NewClient", func() {
	It("rejects a lone access key", func() {
		_, err := archive.NewClient(context.Background(), archive.Config{AccessKeyID: testAccessKey})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Uploader", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("puts the export under the bucket and key", func() {
		var (
			gotMethod, gotPath, gotType string
			gotBody                     []byte
		)
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer mockServer.Close()

		client, err := archive.NewClient(ctx, archive.Config{
			Endpoint:        mockServer.URL,
			AccessKeyID:     testAccessKey,
			SecretAccessKey: testSecretKey,
		})
		Expect(err).NotTo(HaveOccurred())

		err = archive.NewUploader(client, "hooks").Upload(ctx, "exports/logs.csv", []byte("id,ip\n1,1.2.3.4\n"))
		Expect(err).NotTo(HaveOccurred())

		Expect(gotMethod).To(Equal("PUT"))
		Expect(gotPath).To(Equal("/hooks/exports/logs.csv"))
		Expect(gotType).To(Equal(archive.ContentType))
		Expect(string(gotBody)).To(ContainSubstring("1,1.2.3.4"))
	})

	It("fails after exhausting retries", func() {
		var requestCount atomic.Int32
		mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>ServiceUnavailable</Code>
  <Message>Service is temporarily unavailable</Message>
</Error>`))
		}))
		defer mockServer.Close()

		client, err := archive.NewClient(ctx, archive.Config{
			Endpoint:         mockServer.URL,
			AccessKeyID:      testAccessKey,
			SecretAccessKey:  testSecretKey,
			MaxRetryAttempts: 2,
			MaxBackoffDelay:  100 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		err = archive.NewUploader(client, "hooks").Upload(ctx, "logs.csv", []byte("x"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("bucket=hooks"))
		Expect(requestCount.Load()).To(Equal(int32(2)))
	})
})

package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const mockBucketName = "mock-bucket"

// MockBucket is the in-memory state behind a store returned by NewMockForTests.
type MockBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	// FailPuts makes every PutObject answer 500.
	FailPuts bool
}

// Keys returns the stored object keys in order.
func (b *MockBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Gets returns the number of GetObject calls served.
func (b *MockBucket) Gets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

// NewMockForTests returns a Store backed by an in-memory fake HTTP transport.
// Only the S3 operations the document store issues are implemented.
func NewMockForTests(prefix string, pageSize int32) (*Store, *MockBucket) {
	bucket := &MockBucket{objects: make(map[string][]byte)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: &mockRoundTripper{bucket: bucket}}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.RetryMaxAttempts = 1
	})
	return newStore(client, Config{Bucket: mockBucketName, Prefix: prefix, PageSize: pageSize}), bucket
}

type mockRoundTripper struct{ bucket *MockBucket }

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	b := m.bucket
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(req.URL.Path, "/"+mockBucketName), "/")
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return b.list(req), nil
	}
	switch req.Method {
	case http.MethodPut:
		if b.FailPuts {
			return respond(http.StatusInternalServerError, nil), nil
		}
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		b.objects[key] = body
		return respond(http.StatusOK, nil), nil
	case http.MethodGet:
		b.gets++
		if body, ok := b.objects[key]; ok {
			resp := respond(http.StatusOK, body)
			resp.Header.Set("Content-Type", "application/json")
			resp.Header.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			return resp, nil
		}
		return respond(http.StatusNotFound, nil), nil
	case http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil), nil
	}
	return respond(http.StatusNotImplemented, nil), nil
}

// list serves ListObjectsV2 with continuation tokens naming the last key returned.
func (b *MockBucket) list(req *http.Request) *http.Response {
	q := req.URL.Query()
	prefix := q.Get("prefix")
	after := q.Get("continuation-token")
	limit := 1000
	if n, err := strconv.Atoi(q.Get("max-keys")); err == nil && n > 0 {
		limit = n
	}
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	truncated := len(keys) > limit
	if truncated {
		keys = keys[:limit]
	}
	var out bytes.Buffer
	out.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&out, "<KeyCount>%d</KeyCount><IsTruncated>%t</IsTruncated>", len(keys), truncated)
	if truncated {
		out.WriteString("<NextContinuationToken>")
		_ = xml.EscapeText(&out, []byte(keys[len(keys)-1]))
		out.WriteString("</NextContinuationToken>")
	}
	for _, k := range keys {
		out.WriteString("<Contents><Key>")
		_ = xml.EscapeText(&out, []byte(k))
		fmt.Fprintf(&out, "</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", len(b.objects[k]))
	}
	out.WriteString("</ListBucketResult>")
	resp := respond(http.StatusOK, out.Bytes())
	resp.Header.Set("Content-Type", "application/xml")
	return resp
}

func respond(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Length": {strconv.Itoa(len(body))}},
	}
}

// decodeChunked decodes a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sz, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || int64(len(parts[1])) != sz || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

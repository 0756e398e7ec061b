package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schoolscreen/internal/kv"
)

// fakeS3 is a path-style S3 subset: Head/Get/Put/Delete and paged ListObjectsV2.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	// tooLarge rejects PUTs bigger than this many bytes; 0 disables.
	tooLarge int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte), pageSize: 2} }

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}

	switch req.Method {
	case http.MethodHead:
		if body, ok := f.objects[key]; ok {
			resp := emptyResponse(http.StatusOK)
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return resp, nil
		}
		return emptyResponse(http.StatusNotFound), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		if f.tooLarge > 0 && len(body) > f.tooLarge {
			return xmlResponse(http.StatusBadRequest,
				`<Error><Code>EntityTooLarge</Code><Message>too large</Message></Error>`), nil
		}
		f.objects[key] = body
		resp := emptyResponse(http.StatusOK)
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	case http.MethodGet:
		if body, ok := f.objects[key]; ok {
			resp := emptyResponse(http.StatusOK)
			resp.Body = io.NopCloser(bytes.NewReader(body))
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return resp, nil
		}
		return xmlResponse(http.StatusNotFound,
			`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return emptyResponse(http.StatusNoContent), nil
	}
	return emptyResponse(http.StatusNotImplemented), nil
}

// list pages keys using the last returned key as the continuation token.
func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	truncated := len(keys) > f.pageSize
	if truncated {
		keys = keys[:f.pageSize]
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%s</NextContinuationToken>", keys[len(keys)-1])
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>",
			k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")
	return xmlResponse(http.StatusOK, b.String())
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newTestStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewWithClient(client, "test-bucket", "screen/")
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newTestStore(t, fake)

	has, err := s.Has(ctx, "records/S-1")
	require.NoError(t, err)
	assert.False(t, has)

	_, ok, err := s.Read(ctx, "records/S-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "records/S-1", []byte(`{"v":1}`)))
	assert.Contains(t, fake.objects, "screen/records/S-1")

	has, err = s.Has(ctx, "records/S-1")
	require.NoError(t, err)
	assert.True(t, has)

	data, ok, err := s.Read(ctx, "records/S-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(data))

	require.NoError(t, s.Delete(ctx, "records/S-1"))
	require.NoError(t, s.Delete(ctx, "records/S-1"))
	has, _ = s.Has(ctx, "records/S-1")
	assert.False(t, has)
}

func TestStore_KeysPaged(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newTestStore(t, fake)
	for _, k := range []string{"records/c", "records/a", "meta/index", "records/b", "records/d", "records/e"} {
		require.NoError(t, s.Write(ctx, k, []byte("x")))
	}

	keys, err := kv.CollectKeys(s.Keys(ctx, "records/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"records/a", "records/b", "records/c", "records/d", "records/e"}, keys)

	// early break stops paging
	var first []string
	for k, err := range s.Keys(ctx, "") {
		require.NoError(t, err)
		first = append(first, k)
		break
	}
	assert.Equal(t, []string{"meta/index"}, first)
}

func TestStore_EntityTooLargeIsQuota(t *testing.T) {
	fake := newFakeS3()
	fake.tooLarge = 4
	s := newTestStore(t, fake)

	err := s.Write(context.Background(), "records/big", []byte("0123456789"))
	require.Error(t, err)
	assert.True(t, kv.IsQuotaExceeded(err))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorContains(t, err, "bucket required")
}

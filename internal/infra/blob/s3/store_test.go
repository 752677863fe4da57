package s3

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"heritagestore/internal/blob/core"
)

// fakeS3 answers the path-style subset of the S3 API the store uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}} }

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, "", nil), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"abc123"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			h.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodHead {
			return response(http.StatusOK, "", h), nil
		}
		return response(http.StatusOK, string(obj.body), h), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if decoded, ok := decodeChunked(body); ok {
			body = decoded
		}
		md := map[string]string{}
		for name, vals := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				md[strings.ToLower(strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-"))] = vals[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		f.puts++
		return response(http.StatusOK, "", http.Header{"Etag": {`"abc123"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, "", nil), nil
	}
	return response(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked unwraps a single-chunk aws-chunked body.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	// A CA bundle from the host environment must not leak into the fake client.
	t.Setenv("AWS_CA_BUNDLE", "")
	fake := newFakeS3()
	st, err := New(context.Background(), Config{
		Bucket:          "surrogates",
		Endpoint:        "http://s3.test",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return st, fake
}

func writeCABundle(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "heritage test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("cert: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

func TestNewCustomClientWithCABundle(t *testing.T) {
	t.Setenv("AWS_CA_BUNDLE", writeCABundle(t))
	fake := newFakeS3()
	st, err := New(context.Background(), Config{
		Bucket:          "surrogates",
		Endpoint:        "http://s3.test",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("new with CA bundle: %v", err)
	}
	if _, err := st.Put(context.Background(), "k", strings.NewReader("1"), core.PutOptions{}); err != nil {
		t.Fatalf("put through custom client: %v", err)
	}
	if fake.puts != 1 {
		t.Fatalf("custom client not used, puts=%d", fake.puts)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestPutHeadGet(t *testing.T) {
	ctx := context.Background()
	st, fake := newTestStore(t)
	if st.Driver() != core.DriverS3 || st.Bucket() != "surrogates" {
		t.Fatalf("unexpected driver/bucket %s %s", st.Driver(), st.Bucket())
	}
	info, err := st.Put(ctx, "surrogates/dig_1/scan.jpg", bytes.NewBufferString("jpeg"), core.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"surrogate_id": "dig_1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ContentType != "image/jpeg" || info.ETag != "abc123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if fake.objects["surrogates/dig_1/scan.jpg"].metadata["surrogate_id"] != "dig_1" {
		t.Fatalf("metadata not sent: %+v", fake.objects)
	}

	_, rc, err := st.Get(ctx, "surrogates/dig_1/scan.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "jpeg" {
		t.Fatalf("body %q", body)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	st, fake := newTestStore(t)
	if _, err := st.Put(ctx, "k", strings.NewReader("1"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := st.Put(ctx, "k", strings.NewReader("2"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if fake.puts != 1 {
		t.Fatalf("expected a single PutObject, got %d", fake.puts)
	}
}

func TestMissingObjects(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	if _, err := st.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: %v", err)
	}
	if _, _, err := st.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if ok, err := st.Delete(ctx, "missing"); ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)
	for _, k := range []string{"surrogates/a.png", "surrogates/b.png", "other/c.png"} {
		if _, err := st.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := st.List(ctx, "surrogates/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "surrogates/a.png" || list[1].Key != "surrogates/b.png" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := st.Delete(ctx, "surrogates/a.png")
	if !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	list, _ = st.List(ctx, "surrogates/")
	if len(list) != 1 {
		t.Fatalf("expected 1 object after delete, got %d", len(list))
	}
}

func TestPresignURL(t *testing.T) {
	st, _ := newTestStore(t)
	u, err := st.PresignURL(context.Background(), "surrogates/a.png", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "/surrogates/surrogates/a.png") || !strings.Contains(u, "X-Amz-Expires=900") {
		t.Fatalf("unexpected url %s", u)
	}
	if _, err := st.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

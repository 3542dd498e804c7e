package fileserver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devwelkin/hermes-files/internal/docroot"
	"github.com/devwelkin/hermes-files/internal/response"
	"github.com/devwelkin/hermes-files/internal/server"
	"github.com/devwelkin/hermes-files/internal/wiretest"
)

const indexHTML = "<html><body>hello</body></html>\n"

type fixture struct {
	dir string
	srv *server.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":      indexHTML,
		"notes.txt":       "plain text\n",
		"photo.jpg":       "\xff\xd8\xff\xe0fakejpeg",
		"data.json":       `{"a":1}`,
		"blob.bin":        "\x00\x01\x02",
		"sub/nested.html": "<p>nested</p>",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	root, err := docroot.New(dir)
	require.NoError(t, err)
	fs := New(Config{Root: root, MaxFormBytes: 1024})
	srv, err := server.Serve(server.Config{Port: 0, Workers: 4}, fs.Handle)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return &fixture{dir: dir, srv: srv}
}

func (f *fixture) do(t *testing.T, raw string) *wiretest.Response {
	t.Helper()
	return wiretest.Do(t, f.srv.Addr(), raw)
}

func TestGetExistingFiles(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		target      string
		contentType string
		body        string
	}{
		{"/index.html", "text/html", indexHTML},
		{"/", "text/html", indexHTML},
		{"/notes.txt", "text/plain", "plain text\n"},
		{"/photo.jpg", "image/jpeg", "\xff\xd8\xff\xe0fakejpeg"},
		{"/data.json", "application/json", `{"a":1}`},
		{"/blob.bin", "application/octet-stream", "\x00\x01\x02"},
		{"/sub/nested.html", "text/html", "<p>nested</p>"},
	}
	for _, tt := range tests {
		resp := f.do(t, "GET "+tt.target+" HTTP/1.1\r\nHost: localhost\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine, tt.target)
		assert.Equal(t, tt.contentType, resp.Header("Content-Type"), tt.target)
		assert.Equal(t, fmt.Sprint(len(tt.body)), resp.Header("Content-Length"), tt.target)
		assert.NotEmpty(t, resp.Header("Last-Modified"), tt.target)
		assert.Equal(t, tt.body, string(resp.Body), tt.target)
	}
}

func TestHeadMatchesGet(t *testing.T) {
	f := newFixture(t)
	get := f.do(t, "GET /notes.txt HTTP/1.1\r\n\r\n")
	head := f.do(t, "HEAD /notes.txt HTTP/1.1\r\n\r\n")

	assert.Equal(t, 200, head.StatusCode)
	assert.Equal(t, get.Header("Content-Type"), head.Header("Content-Type"))
	assert.Equal(t, get.Header("Content-Length"), head.Header("Content-Length"))
	assert.Equal(t, get.Header("Last-Modified"), head.Header("Last-Modified"))
	assert.Empty(t, head.Body)

	info, err := os.Stat(filepath.Join(f.dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, response.FormatTime(info.ModTime()), head.Header("Last-Modified"))

	head = f.do(t, "HEAD / HTTP/1.1\r\n\r\n")
	assert.Equal(t, fmt.Sprint(len(indexHTML)), head.Header("Content-Length"))
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "GET /missing.txt HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 404 Not Found", resp.StatusLine)
	assert.Equal(t, "text/html", resp.Header("Content-Type"))
	assert.Contains(t, string(resp.Body), "Not Found")
	assert.Equal(t, fmt.Sprint(len(resp.Body)), resp.Header("Content-Length"))

	resp = f.do(t, "HEAD /missing.txt HTTP/1.1\r\n\r\n")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "0", resp.Header("Content-Length"))
	assert.Empty(t, resp.Body)

	// directories are not listed
	resp = f.do(t, "GET /sub HTTP/1.1\r\n\r\n")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestTraversalRejected(t *testing.T) {
	f := newFixture(t)
	secret := filepath.Join(filepath.Dir(f.dir), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))
	t.Cleanup(func() { os.Remove(secret) })

	for _, target := range []string{"/../secret.txt", "/sub/../../secret.txt", "/%2e%2e/secret.txt"} {
		resp := f.do(t, "GET "+target+" HTTP/1.1\r\n\r\n")
		assert.Equal(t, 400, resp.StatusCode, target)
		assert.NotContains(t, string(resp.Body), "top secret", target)
	}

	resp := f.do(t, "PUT /../evil.txt HTTP/1.1\r\nContent-Length: 4\r\n\r\nevil")
	assert.Equal(t, 400, resp.StatusCode)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(f.dir), "evil.txt"))
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, "DELETE /index.html HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed", resp.StatusLine)
	assert.Equal(t, "0", resp.Header("Content-Length"))
	assert.Empty(t, resp.Body)
	assert.FileExists(t, filepath.Join(f.dir, "index.html"))
}

func TestPutCreatesAndOverwrites(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(f.dir, "new", "deep", "file.txt")

	resp := f.do(t, "PUT /new/deep/file.txt HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world")
	assert.Equal(t, "HTTP/1.1 201 Created", resp.StatusLine)
	assert.Equal(t, "11", resp.Header("Content-Length"))
	assert.Equal(t, "text/plain", resp.Header("Content-Type"))
	// header-only: the length describes the file, not the response
	assert.Empty(t, resp.Body)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	resp = f.do(t, "PUT /new/deep/file.txt HTTP/1.1\r\nContent-Length: 3\r\n\r\nbye")
	assert.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine)
	assert.Equal(t, "3", resp.Header("Content-Length"))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
}

func TestPutShortBodyFails(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, "PUT /notes.txt HTTP/1.1\r\nContent-Length: 50\r\n\r\nonly this")
	assert.Equal(t, 500, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(f.dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain text\n", string(data))

	resp = f.do(t, "PUT /empty-body.txt HTTP/1.1\r\nContent-Length: 5\r\n\r\n")
	assert.Equal(t, 500, resp.StatusCode)
	assert.NoFileExists(t, filepath.Join(f.dir, "empty-body.txt"))
}

func TestPutWithoutContentLength(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, "PUT /blank.txt HTTP/1.1\r\n\r\nignored")
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "0", resp.Header("Content-Length"))
	data, err := os.ReadFile(filepath.Join(f.dir, "blank.txt"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPutThenGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	payload := bytes.Repeat([]byte("0123456789abcdef\x00\xff"), 10000)

	raw := fmt.Sprintf("PUT /big/payload.bin HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", len(payload), payload)
	resp := f.do(t, raw)
	require.Equal(t, 201, resp.StatusCode)

	resp = f.do(t, "GET /big/payload.bin HTTP/1.1\r\n\r\n")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, fmt.Sprint(len(payload)), resp.Header("Content-Length"))
	assert.True(t, bytes.Equal(payload, resp.Body), "round trip changed content")
}

func TestPostFormServesFile(t *testing.T) {
	f := newFixture(t)
	get := f.do(t, "GET /index.html HTTP/1.1\r\n\r\n")

	body := "filename=index.html"
	resp := f.do(t, fmt.Sprintf("POST / HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
	assert.Equal(t, get.StatusLine, resp.StatusLine)
	assert.Equal(t, get.Header("Content-Type"), resp.Header("Content-Type"))
	assert.Equal(t, get.Header("Content-Length"), resp.Header("Content-Length"))
	assert.Equal(t, get.Body, resp.Body)

	body = "other=1&filename=sub%2Fnested.html"
	resp = f.do(t, fmt.Sprintf("POST /ignored HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded; charset=utf-8\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<p>nested</p>", string(resp.Body))
}

func TestPostFormErrors(t *testing.T) {
	f := newFixture(t)
	post := func(body string) *wiretest.Response {
		return f.do(t, fmt.Sprintf("POST / HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
	}

	resp := post("filename=nope.txt")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Not Found")

	for _, body := range []string{"", "filename=", "filename=%20%20", "other=x"} {
		resp = post(body)
		assert.Equal(t, 400, resp.StatusCode, "%q", body)
	}

	resp = post("filename=" + strings.Repeat("a", 2000))
	assert.Equal(t, 400, resp.StatusCode)

	resp = post("filename=..%2F..%2Fetc%2Fpasswd")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestPostUnsupportedMedia(t *testing.T) {
	f := newFixture(t)
	for _, ct := range []string{"Content-Type: text/plain\r\n", "Content-Type: application/json\r\n", ""} {
		resp := f.do(t, "POST / HTTP/1.1\r\n"+ct+"Content-Length: 4\r\n\r\nbody")
		assert.Equal(t, "HTTP/1.1 415 Unsupported Media Type", resp.StatusLine, ct)
		assert.Empty(t, resp.Body)
	}
}

func multipartRequest(boundary, body string) string {
	return fmt.Sprintf("POST /upload HTTP/1.1\r\n"+
		"Content-Type: multipart/form-data; boundary=%s\r\n"+
		"Content-Length: %d\r\n\r\n%s", boundary, len(body), body)
}

func TestPostMultipartStoresFiles(t *testing.T) {
	f := newFixture(t)
	body := "--b0und\r\n" +
		"Content-Disposition: form-data; name=\"comment\"\r\n\r\n" +
		"two files\r\n" +
		"--b0und\r\n" +
		"Content-Disposition: form-data; name=\"a\"; filename=\"report.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"report body\r\n" +
		"--b0und\r\n" +
		"Content-Disposition: form-data; name=\"b\"; filename=\"../../escape.json\"\r\n\r\n" +
		"{\"x\":true}\r\n" +
		"--b0und--\r\n"

	resp := f.do(t, multipartRequest("b0und", body))
	assert.Equal(t, "HTTP/1.1 201 Created", resp.StatusLine)
	assert.Equal(t, "0", resp.Header("Content-Length"))
	assert.Empty(t, resp.Body)

	entries, err := os.ReadDir(filepath.Join(f.dir, DefaultUploadDir))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	contents := map[string]string{}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(f.dir, DefaultUploadDir, e.Name()))
		require.NoError(t, err)
		contents[filepath.Ext(e.Name())] = string(data)
		assert.True(t, strings.HasPrefix(e.Name(), "report-") || strings.HasPrefix(e.Name(), "escape-"), e.Name())
	}
	assert.Equal(t, "report body", contents[".txt"])
	assert.Equal(t, `{"x":true}`, contents[".json"])
	assert.NoFileExists(t, filepath.Join(filepath.Dir(f.dir), "escape.json"))
}

func TestPostMultipartMalformed(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, "POST / HTTP/1.1\r\nContent-Type: multipart/form-data\r\nContent-Length: 3\r\n\r\nabc")
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "boundary")

	resp = f.do(t, multipartRequest("zz", "no delimiter in here"))
	assert.Equal(t, 400, resp.StatusCode)
}

func TestConcurrentClients(t *testing.T) {
	f := newFixture(t)
	const n = 20
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("file%02d.txt", i)
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(strings.Repeat(name, i+1)), 0o644))
	}

	var wg sync.WaitGroup
	results := make([]*wiretest.Response, n)
	bad := make([]*wiretest.Response, n)
	errs := make([]error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			results[i], errs[2*i] = wiretest.Send(f.srv.Addr(), fmt.Sprintf("GET /file%02d.txt HTTP/1.1\r\n\r\n", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			bad[i], errs[2*i+1] = wiretest.Send(f.srv.Addr(), "BROKEN\r\n\r\n")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("file%02d.txt", i)
		assert.Equal(t, 200, results[i].StatusCode, name)
		assert.Equal(t, strings.Repeat(name, i+1), string(results[i].Body), name)
		assert.Equal(t, 400, bad[i].StatusCode)
	}
}

package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/protocol"
)

type fakeDoer struct {
	mu    sync.Mutex
	calls int
	last  struct {
		method, uri, contentType string
		body                     []byte
		header                   string
	}
	fn func(req *protocol.Request, resp *protocol.Response) error
}

func (d *fakeDoer) Do(_ context.Context, req *protocol.Request, resp *protocol.Response) error {
	d.mu.Lock()
	d.calls++
	d.last.method = string(req.Method())
	d.last.uri = req.URI().String()
	d.last.contentType = string(req.Header.Peek("Content-Type"))
	d.last.header = string(req.Header.Peek("X-Card"))
	d.last.body = append([]byte(nil), req.Body()...)
	d.mu.Unlock()
	return d.fn(req, resp)
}

func respond(code int, body string) func(*protocol.Request, *protocol.Response) error {
	return func(_ *protocol.Request, resp *protocol.Response) error {
		resp.SetStatusCode(code)
		resp.SetBodyString(body)
		return nil
	}
}

func newTestRequest(t *testing.T, cfg RequestConfig, d Doer, opts ...ServiceOption) *RequestConnector {
	t.Helper()
	s, err := NewServiceRegistry(append([]ServiceOption{WithHTTPClient(d)}, opts...)...)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	c, err := NewRequest(cfg, s)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return c
}

func TestRequest_NotFoundIsFailure(t *testing.T) {
	d := &fakeDoer{fn: respond(404, "no such card")}
	c := newTestRequest(t, RequestConfig{URL: "http://x/404"}, d)
	_, err := c.Fetch(context.Background(), Request{})
	if err == nil {
		t.Fatalf("want error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no such card") {
		t.Fatalf("bad message: %v", err)
	}
}

func TestRequest_JSON(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{"title":"t","n":[1,2]}`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card", Headers: map[string]string{"X-Card": "h"}}, d)
	v, err := c.Fetch(context.Background(), Request{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if title, ok := Lookup(v, "title"); !ok || title != "t" {
		t.Fatalf("bad data: %#v", v)
	}
	if d.last.method != "GET" || d.last.header != "h" {
		t.Fatalf("bad request: %+v", d.last)
	}
}

func TestRequest_GetParametersInQuery(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{}`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card?a=1", Parameters: map[string]any{"q": "v"}}, d)
	if _, err := c.Fetch(context.Background(), Request{Params: map[string]any{"page": 2}}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(d.last.uri, "q=v") || !strings.Contains(d.last.uri, "page=2") || !strings.Contains(d.last.uri, "a=1") {
		t.Fatalf("bad uri: %s", d.last.uri)
	}
	if len(d.last.body) != 0 {
		t.Fatalf("unexpected body: %s", d.last.body)
	}
}

func TestRequest_PostParametersInBody(t *testing.T) {
	d := &fakeDoer{fn: respond(201, `{"ok":true}`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card", Method: "post", Parameters: map[string]any{"q": "v"}}, d)
	v, err := c.Fetch(context.Background(), Request{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ok, _ := Lookup(v, "ok"); ok != true {
		t.Fatalf("bad data: %#v", v)
	}
	if d.last.method != "POST" || d.last.contentType != "application/json" || !strings.Contains(string(d.last.body), `"q":"v"`) {
		t.Fatalf("bad request: %+v", d.last)
	}
}

func TestRequest_ExplicitBody(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{}`)}
	c := newTestRequest(t, RequestConfig{
		URL:     "http://x/card",
		Method:  "PUT",
		Body:    "a=1",
		Headers: map[string]string{"content-type": "application/x-www-form-urlencoded"},
	}, d)
	if _, err := c.Fetch(context.Background(), Request{}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(d.last.body) != "a=1" || d.last.contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("bad request: %+v", d.last)
	}
}

func TestRequest_Text(t *testing.T) {
	d := &fakeDoer{fn: respond(200, "plain")}
	c := newTestRequest(t, RequestConfig{URL: "http://x/t", DataType: "text"}, d)
	v, err := c.Fetch(context.Background(), Request{})
	if err != nil || v != "plain" {
		t.Fatalf("bad: %v %v", v, err)
	}
}

func TestRequest_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	d := &fakeDoer{fn: func(*protocol.Request, *protocol.Response) error { return boom }}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card"}, d)
	if _, err := c.Fetch(context.Background(), Request{}); !errors.Is(err, boom) {
		t.Fatalf("want wrapped transport error, got %v", err)
	}
}

func TestRequest_BadJSON(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{"a":`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card"}, d)
	if _, err := c.Fetch(context.Background(), Request{}); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestRequest_RateLimitHonorsContext(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{}`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card"}, d, WithRateLimit(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, Request{}); err == nil {
		t.Fatalf("want error")
	}
	if d.calls != 0 {
		t.Fatalf("request sent despite cancelled context")
	}
}

func TestRequest_SequentialGetsNotShared(t *testing.T) {
	d := &fakeDoer{fn: respond(200, `{"a":1}`)}
	c := newTestRequest(t, RequestConfig{URL: "http://x/card"}, d)
	v1, _ := c.Fetch(context.Background(), Request{})
	v2, _ := c.Fetch(context.Background(), Request{})
	if d.calls != 2 {
		t.Fatalf("calls: %d", d.calls)
	}
	v1.(map[string]any)["a"] = "changed"
	if a, _ := Lookup(v2, "a"); a == "changed" {
		t.Fatalf("results share memory")
	}
}

// blockingDoer 挂起每个调用，直到 release 关闭，用来让并发请求重叠。
type blockingDoer struct {
	mu      sync.Mutex
	calls   int
	arrived chan struct{}
	release chan struct{}
}

func newBlockingDoer() *blockingDoer {
	return &blockingDoer{arrived: make(chan struct{}, 8), release: make(chan struct{})}
}

func (d *blockingDoer) Do(ctx context.Context, req *protocol.Request, resp *protocol.Response) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.arrived <- struct{}{}
	select {
	case <-d.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	resp.SetStatusCode(200)
	resp.SetBodyString(`{"user":"` + string(req.Header.Peek("Authorization")) + `"}`)
	return nil
}

func (d *blockingDoer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func fetchAsync(c *RequestConnector) chan any {
	out := make(chan any, 1)
	go func() {
		v, err := c.Fetch(context.Background(), Request{})
		if err != nil {
			out <- err
			return
		}
		out <- v
	}()
	return out
}

func awaitFetch(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		if err, ok := v.(error); ok {
			t.Fatalf("fetch: %v", err)
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout")
	}
	return nil
}

func TestRequest_ConcurrentGetsWithDifferentHeadersNotShared(t *testing.T) {
	d := newBlockingDoer()
	s := testServices(t, WithHTTPClient(d))
	alice, err := NewRequest(RequestConfig{URL: "http://x/me", Headers: map[string]string{"Authorization": "alice"}}, s)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	bob, err := NewRequest(RequestConfig{URL: "http://x/me", Headers: map[string]string{"Authorization": "bob"}}, s)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	a := fetchAsync(alice)
	b := fetchAsync(bob)
	// 两个请求都必须到达传输层，否则说明被合并了
	for i := 0; i < 2; i++ {
		select {
		case <-d.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d request(s) reached the client", d.count())
		}
	}
	close(d.release)
	if u, _ := Lookup(awaitFetch(t, a), "user"); u != "alice" {
		t.Fatalf("alice got %v", u)
	}
	if u, _ := Lookup(awaitFetch(t, b), "user"); u != "bob" {
		t.Fatalf("bob got %v", u)
	}
}

func TestRequest_ConcurrentIdenticalGetsShared(t *testing.T) {
	d := newBlockingDoer()
	s := testServices(t, WithHTTPClient(d))
	cfg := RequestConfig{URL: "http://x/me", Headers: map[string]string{"Authorization": "alice"}}
	c1, _ := NewRequest(cfg, s)
	c2, _ := NewRequest(cfg, s)
	r1 := fetchAsync(c1)
	select {
	case <-d.arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout")
	}
	r2 := fetchAsync(c2)
	// 给第二个调用方加入同一次请求的时间
	time.Sleep(50 * time.Millisecond)
	close(d.release)
	v1 := awaitFetch(t, r1)
	v2 := awaitFetch(t, r2)
	if n := d.count(); n != 1 {
		t.Fatalf("calls: %d", n)
	}
	v1.(map[string]any)["user"] = "changed"
	if u, _ := Lookup(v2, "user"); u != "alice" {
		t.Fatalf("shared result leaked between callers: %v", u)
	}
}

func TestRequest_HTTPSWithDefaultClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure":true}`))
	}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	s, err := NewServiceRegistry(WithTLSConfig(&tls.Config{RootCAs: pool}))
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	c, err := NewRequest(RequestConfig{URL: srv.URL + "/data", Timeout: 5 * time.Second}, s)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := c.Fetch(ctx, Request{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if secure, _ := Lookup(v, "secure"); secure != true {
		t.Fatalf("bad data: %#v", v)
	}
}

func TestNewRequest_Validation(t *testing.T) {
	s := testServices(t)
	bad := []RequestConfig{
		{},
		{URL: "ftp://x/y"},
		{URL: "http://x/y", DataType: "xml"},
	}
	for _, cfg := range bad {
		if _, err := NewRequest(cfg, s); err == nil {
			t.Fatalf("want error for %+v", cfg)
		}
	}
	if _, err := NewRequest(RequestConfig{URL: "http://x"}, nil); err == nil {
		t.Fatalf("want error without services")
	}
}

func TestRequest_HertzClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/404" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	s, err := NewServiceRegistry()
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	p, err := Create(&ProviderConfig{Request: &RequestConfig{URL: srv.URL + "/data"}}, s)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer p.Destroy()
	got := make(chan any, 1)
	p.AttachDataChanged(func(d any) { got <- d })
	p.AttachError(func(msg string) { t.Errorf("unexpected error: %s", msg) })
	p.TriggerDataUpdate()
	var d any
	select {
	case d = <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout")
	}
	if a, ok := Lookup(d, "a"); !ok || a.(float64) != 1 {
		t.Fatalf("bad data: %#v", d)
	}

	q, err := Create(&ProviderConfig{Request: &RequestConfig{URL: srv.URL + "/404"}}, s)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer q.Destroy()
	msgs := make(chan string, 1)
	q.AttachError(func(msg string) { msgs <- msg })
	q.TriggerDataUpdate()
	select {
	case msg := <-msgs:
		if !strings.Contains(msg, "404") {
			t.Fatalf("bad message: %s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout")
	}
}

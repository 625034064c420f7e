package application

import (
	"sync/atomic"
	"time"
)

type fakeRequest struct {
	addr    string
	port    int
	ua      *string
	server  string
	path    string
	headers map[string]string
	cookies map[string]string
	params  map[string]string
}

func newReq(addr, ua string) *fakeRequest {
	return &fakeRequest{addr: addr, ua: &ua, server: "groupware.example.com", path: "/ajax/mail"}
}

func (r *fakeRequest) RemoteAddr() string { return r.addr }
func (r *fakeRequest) RemotePort() int    { return r.port }
func (r *fakeRequest) ServerName() string { return r.server }
func (r *fakeRequest) Path() string       { return r.path }

func (r *fakeRequest) UserAgent() (string, bool) {
	if r.ua == nil {
		return "", false
	}
	return *r.ua, true
}

func (r *fakeRequest) Header(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

func (r *fakeRequest) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

func (r *fakeRequest) Parameter(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

type testClock struct{ ms atomic.Int64 }

func newTestClock() *testClock {
	c := &testClock{}
	c.ms.Store(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC).UnixMilli())
	return c
}

func (c *testClock) Now() time.Time          { return time.UnixMilli(c.ms.Load()) }
func (c *testClock) Advance(d time.Duration) { c.ms.Add(d.Milliseconds()) }

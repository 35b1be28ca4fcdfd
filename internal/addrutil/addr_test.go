package addrutil

import (
	"net/http/httptest"
	"testing"
)

func TestHostFromAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                 "",
		"1.2.3.4":          "1.2.3.4",
		"1.2.3.4:5000":     "1.2.3.4",
		" 10.0.0.1 ":       "10.0.0.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"2001:db8::1":      "2001:db8::1",
		"[2001:db8::1]":    "2001:db8::1",
		"phone.local":      "phone.local",
	}
	for in, want := range cases {
		if got := HostFromAddr(in); got != want {
			t.Fatalf("HostFromAddr(%q)=%q want %q", in, got, want)
		}
	}
}

func TestClientAddr(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/pothole", nil)
	r.RemoteAddr = "192.168.1.7:53211"
	if got := ClientAddr(r); got != "192.168.1.7" {
		t.Fatalf("remote=%q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientAddr(r); got != "203.0.113.9" {
		t.Fatalf("forwarded=%q", got)
	}

	r.Header.Set("X-Forwarded-For", " , ")
	if got := ClientAddr(r); got != "192.168.1.7" {
		t.Fatalf("blank forwarded=%q", got)
	}
}

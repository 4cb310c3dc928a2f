package alert

import (
	"context"
	"net"
	"reflect"
	"strconv"
	"testing"
	"time"
)

func TestParseRecipients(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		fallback string
		want     []string
	}{
		{"comma separated", "a@example.com, b@example.com", "", []string{"a@example.com", "b@example.com"}},
		{"newline separated", "a@example.com\nb@example.com\r\nc@example.com", "", []string{"a@example.com", "b@example.com", "c@example.com"}},
		{"mixed separators with blanks", "a@example.com,,\n , b@example.com", "", []string{"a@example.com", "b@example.com"}},
		{"empty falls back", "", "admin@example.com", []string{"admin@example.com"}},
		{"whitespace only falls back", " \n ", "admin@example.com", []string{"admin@example.com"}},
		{"empty with no fallback", "", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseRecipients(tc.raw, tc.fallback)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseRecipients(%q, %q) = %v, want %v", tc.raw, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestSMTPMailerHonorsContextDeadline(t *testing.T) {
	// A relay that accepts the connection but never sends its greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-done
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	m := NewSMTPMailer(host, port, "", "", "hub@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Send(ctx, []string{"ops@example.com"}, "subject", "body")
	if err == nil {
		t.Fatal("send through a silent relay succeeded")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send blocked for %s against a hung relay", elapsed)
	}
}

package utility

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/action/actiontest"
	"github.com/tombee/chord/pkg/errors"
)

func run(t *testing.T, kind string, config interface{}, row map[string]interface{}) (interface{}, error) {
	t.Helper()
	reg := action.NewRegistry()
	Register(reg)

	f, err := reg.Get(kind)
	if err != nil {
		t.Fatalf("kind %q not registered: %v", kind, err)
	}
	a, err := f.Create(context.Background(), actiontest.NewCreateArg(kind, config, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return a.Run(context.Background(), actiontest.NewRunArg(config, map[string]interface{}{"salt": "s"}, row))
}

func TestRegister(t *testing.T) {
	reg := action.NewRegistry()
	Register(reg)

	want := []string{KindCrypto, KindEcho, KindSleep, KindURL, KindUUID}
	got := reg.Kinds()
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEcho(t *testing.T) {
	got, err := run(t, KindEcho, map[string]interface{}{
		"user": "{{case.name}}",
		"tags": []interface{}{"{{def.salt}}", 1},
	}, map[string]interface{}{"name": "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := got.(map[string]interface{})
	if m["user"] != "bob" {
		t.Errorf("user = %v, want bob", m["user"])
	}
	if tags := m["tags"].([]interface{}); tags[0] != "s" || tags[1] != 1 {
		t.Errorf("tags = %v", tags)
	}
}

func TestCrypto(t *testing.T) {
	sum := md5.Sum([]byte("bob:s"))
	tests := []struct {
		name    string
		by      string
		from    string
		want    string
		wantErr string
	}{
		{name: "md5", by: "md5", from: "{{case.name}}:{{def.salt}}", want: hex.EncodeToString(sum[:])},
		{name: "sha256", by: "sha256", from: "abc", want: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{name: "sha3_256", by: "sha3_256", from: "abc", want: "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{name: "base64", by: "base64", from: "hello", want: "aGVsbG8="},
		{name: "base64 decode", by: "base64_decode", from: "aGVsbG8=", want: "hello"},
		{name: "unsupported", by: "crc", from: "x", wantErr: CodeUnsupported},
		{name: "missing by", from: "x", wantErr: CodeMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := map[string]interface{}{"from": tt.from}
			if tt.by != "" {
				config["by"] = tt.by
			}
			got, err := run(t, KindCrypto, config, map[string]interface{}{"name": "bob"})
			if tt.wantErr != "" {
				assertCode(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		want    string
		wantErr string
	}{
		{name: "encode", config: map[string]interface{}{"raw": "a b&c"}, want: "a+b%26c"},
		{name: "path", config: map[string]interface{}{"raw": "a b", "by": "path"}, want: "a%20b"},
		{name: "decode", config: map[string]interface{}{"raw": "a%20b%26c", "by": "decode"}, want: "a b&c"},
		{name: "bad escape", config: map[string]interface{}{"raw": "%zz", "by": "decode"}, wantErr: CodeInvalid},
		{name: "missing raw", config: map[string]interface{}{}, wantErr: CodeMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, KindURL, tt.config, nil)
			if tt.wantErr != "" {
				assertCode(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUUID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-([47])[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

	for _, version := range []int{4, 7} {
		got, err := run(t, KindUUID, map[string]interface{}{"version": version}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m := pattern.FindStringSubmatch(got.(string))
		if m == nil || m[1] != string(rune('0'+version)) {
			t.Errorf("version %d: got %v", version, got)
		}
	}

	_, err := run(t, KindUUID, map[string]interface{}{"version": 1}, nil)
	assertCode(t, err, CodeUnsupported)
}

func TestSleep(t *testing.T) {
	t.Run("go duration", func(t *testing.T) {
		start := time.Now()
		got, err := run(t, KindSleep, map[string]interface{}{"duration": "50ms"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("slept %v, want at least 50ms", elapsed)
		}
		if got != int64(50) {
			t.Errorf("got %v, want 50", got)
		}
	})

	t.Run("rendered seconds", func(t *testing.T) {
		got, err := run(t, KindSleep, map[string]interface{}{"seconds": "{{case.wait}}"}, map[string]interface{}{"wait": "0.01"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != int64(10) {
			t.Errorf("got %v, want 10", got)
		}
	})

	for name, config := range map[string]map[string]interface{}{
		"missing":  {},
		"zero":     {"duration": 0},
		"negative": {"duration": "-1s"},
		"too long": {"duration": "1h"},
		"garbage":  {"duration": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, KindSleep, config, nil)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sleep(ctx, actiontest.NewRunArg(map[string]interface{}{"duration": "10s"}, nil, nil))
	assertCode(t, err, CodeInterrupted)
	if time.Since(start) > time.Second {
		t.Error("sleep did not stop on cancellation")
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var aerr *errors.ActionError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ActionError, got %v", err)
	}
	if aerr.Code != code {
		t.Errorf("code = %q, want %q (%v)", aerr.Code, code, err)
	}
}

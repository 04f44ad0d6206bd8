package netcup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

type rpcCall struct {
	Action string          `json:"action"`
	Param  json.RawMessage `json:"param"`
}

func newProvider(t *testing.T, endpoint string) provider.Provider {
	t.Helper()
	spec := config.ProviderSpec{
		Type: "netcup",
		Credentials: map[string]string{
			"customerNumber": "12345",
			"apiKey":         "key",
			"apiPassword":    "pass",
			"endpoint":       endpoint,
		},
	}
	p, err := New("netcup", spec, provider.NewExec(2*time.Second, metrics.New(false)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func testRequest() provider.Request {
	return provider.Request{
		Name: "home",
		Zone: "example.com",
		Type: "A",
		IP:   netip.MustParseAddr("203.0.113.7"),
	}
}

// fakeEndpoint answers the login/info/update/logout sequence and
// records the actions it saw.
func fakeEndpoint(t *testing.T, currentIP string, actions *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var call rpcCall
		if err := json.Unmarshal(b, &call); err != nil {
			t.Errorf("bad rpc body: %v", err)
		}
		*actions = append(*actions, call.Action)

		switch call.Action {
		case "login":
			w.Write([]byte(`{"status":"success","statuscode":2000,"responsedata":{"apisessionid":"sess-1"}}`))
		case "infoDnsRecords":
			w.Write([]byte(`{"status":"success","statuscode":2000,"responsedata":{"dnsrecords":[
				{"id":"7","hostname":"home","type":"A","destination":"` + currentIP + `"},
				{"id":"8","hostname":"mail","type":"A","destination":"198.51.100.1"}
			]}}`))
		case "updateDnsRecords":
			w.Write([]byte(`{"status":"success","statuscode":2000,"responsedata":{}}`))
		case "logout":
			w.Write([]byte(`{"status":"success","statuscode":2000,"responsedata":{}}`))
		default:
			t.Errorf("unexpected action %q", call.Action)
		}
	}
}

func TestApplySessionFlow(t *testing.T) {
	var actions []string
	srv := httptest.NewServer(fakeEndpoint(t, "198.51.100.9", &actions))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	out := p.Apply(context.Background(), testRequest())
	if out.Kind != provider.KindApplied {
		t.Fatalf("got %s (%s), want applied", out.Kind, out.Reason)
	}

	expected := []string{"login", "infoDnsRecords", "updateDnsRecords", "logout"}
	if len(actions) != len(expected) {
		t.Fatalf("actions = %v, want %v", actions, expected)
	}
	for i, a := range expected {
		if actions[i] != a {
			t.Errorf("action[%d] = %q, want %q", i, actions[i], a)
		}
	}
}

func TestApplyUnchangedSkipsUpdate(t *testing.T) {
	var actions []string
	srv := httptest.NewServer(fakeEndpoint(t, "203.0.113.7", &actions))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	out := p.Apply(context.Background(), testRequest())
	if out.Kind != provider.KindUnchanged {
		t.Fatalf("got %s (%s), want unchanged", out.Kind, out.Reason)
	}
	for _, a := range actions {
		if a == "updateDnsRecords" {
			t.Error("update call issued for unchanged record")
		}
	}
}

func TestApplyLoginFailureFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","statuscode":4013,"longmessage":"Login failed"}`))
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	out := p.Apply(context.Background(), testRequest())
	if out.Kind != provider.KindFatal {
		t.Errorf("got %s, want fatal", out.Kind)
	}
}

func TestApplyTransientStatuscodeRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","statuscode":5000,"shortmessage":"API temporarily unavailable"}`))
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	out := p.Apply(context.Background(), testRequest())
	if out.Kind != provider.KindRetryable {
		t.Errorf("got %s (%s), want retryable for transient statuscode", out.Kind, out.Reason)
	}
}

func TestApplyServerErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL)
	out := p.Apply(context.Background(), testRequest())
	if out.Kind != provider.KindRetryable {
		t.Errorf("got %s, want retryable", out.Kind)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	spec := config.ProviderSpec{
		Type:        "netcup",
		Credentials: map[string]string{"customerNumber": "12345"},
	}
	if _, err := New("netcup", spec, provider.NewExec(time.Second, metrics.New(false))); err == nil {
		t.Error("expected error for missing credentials")
	}
}

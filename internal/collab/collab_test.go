package collab_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"claimsaga/internal/audit"
	"claimsaga/internal/collab"
	"claimsaga/internal/domain"
	"claimsaga/internal/history"
	"claimsaga/internal/payment"
	"claimsaga/internal/store"
	"claimsaga/internal/valuation"
	"claimsaga/internal/verify"
	"claimsaga/internal/watch"
)

func TestRemoteClientsPostToContractPaths(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %s", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/verify":
			_ = json.NewEncoder(w).Encode(domain.VerificationResult{ClaimID: body["claimId"].(string), Verified: true, FraudScore: 0.55})
		case "/valuate":
			_ = json.NewEncoder(w).Encode(map[string]any{"claimId": body["claimId"], "payoutAmount": 1572, "autoApproveCap": 7500})
		case "/pay":
			_ = json.NewEncoder(w).Encode(domain.Payment{Status: "success", TransactionID: "t1", Method: "ach", Amount: body["amount"].(float64)})
		case "/audit":
			if body["eventType"] != "ClaimFiled" {
				t.Errorf("audit body: %v", body)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "logged"})
		case "/monitor/start":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "watching", "vin": body["vin"].(string)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	base := collab.NewClient(srv.URL+"/", time.Second)
	res, err := collab.VerificationClient{Client: base}.Verify(ctx, domain.VerifyRequest{ClaimID: "c1"})
	if err != nil || !res.Verified || res.ClaimID != "c1" {
		t.Fatalf("verify: %+v %v", res, err)
	}
	v, err := collab.ValuationClient{Client: base}.Valuate(ctx, domain.ValuationRequest{ClaimID: "c1"})
	if err != nil || v.PayoutAmount != 1572 || v.Cap() != 7500 {
		t.Fatalf("valuate: %+v %v", v, err)
	}
	p, err := collab.PaymentClient{Client: base}.Pay(ctx, domain.PaymentRequest{ClaimID: "c1", Amount: 1572})
	if err != nil || p.Status != domain.PaymentSucceeded || p.Amount != 1572 {
		t.Fatalf("pay: %+v %v", p, err)
	}
	if err := (collab.AuditClient{Client: base}).Record(ctx, "ClaimFiled", map[string]any{"claimId": "c1"}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if err := (collab.WatchClient{Client: base}).Watch(ctx, domain.WatchRequest{VIN: "1HGCM82633A004350"}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	want := []string{"POST /verify", "POST /valuate", "POST /pay", "POST /audit", "POST /monitor/start"}
	if len(seen) != len(want) {
		t.Fatalf("requests: %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("request %d: %s want %s", i, seen[i], want[i])
		}
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ledger offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err := collab.PaymentClient{Client: collab.NewClient(srv.URL, time.Second)}.Pay(context.Background(), domain.PaymentRequest{ClaimID: "c1"})
	var apiErr *collab.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Body != "ledger offline" {
		t.Fatalf("api error: %+v", apiErr)
	}
}

func TestVerifyRejectsUnknownReasonCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"claimId":"c1","verified":true,"fraudScore":0.1,"reasons":["DUPLICATE_CLAIM_SUSPECTED","LOOKS_FINE"]}`))
	}))
	defer srv.Close()
	_, err := collab.VerificationClient{Client: collab.NewClient(srv.URL, time.Second)}.Verify(context.Background(), domain.VerifyRequest{ClaimID: "c1"})
	if err == nil || !strings.Contains(err.Error(), `unknown reason code "LOOKS_FINE"`) {
		t.Fatalf("expected unknown reason error, got %v", err)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	_, err := collab.ValuationClient{Client: collab.NewClient(url, time.Second)}.Valuate(context.Background(), domain.ValuationRequest{ClaimID: "c1"})
	if err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	_, err := collab.VerificationClient{Client: collab.NewClient(srv.URL, 50*time.Millisecond)}.Verify(context.Background(), domain.VerifyRequest{})
	if err == nil {
		t.Fatalf("expected timeout")
	}
}

func TestLocalAdapters(t *testing.T) {
	ctx := context.Background()
	engine := verify.New(history.Simulator{})
	engine.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	res, err := collab.LocalVerifier{Engine: engine}.Verify(ctx, domain.VerifyRequest{ClaimID: "c1", PolicyID: "POL-1", VIN: "1HGCM82633A004350", LossType: "hail", LossDate: "2024-03-20"})
	if err != nil || res.FraudScore != 0.55 {
		t.Fatalf("verify: %+v %v", res, err)
	}

	v, err := collab.LocalValuator{Calculator: valuation.New(valuation.DefaultConfig())}.Valuate(ctx, domain.ValuationRequest{ClaimID: "c1", VIN: "AAAAAAAAAAA", LossType: "hail"})
	if err != nil || v.PayoutAmount != 1572 {
		t.Fatalf("valuate: %+v %v", v, err)
	}

	exec := payment.New(store.NewMemory[domain.Disbursement]())
	payer := collab.LocalPayer{Executor: exec}
	for i := 0; i < 2; i++ {
		p, err := payer.Pay(ctx, domain.PaymentRequest{ClaimID: "c1", Amount: 10})
		if err != nil || p.Status != domain.PaymentSucceeded {
			t.Fatalf("pay: %+v %v", p, err)
		}
	}
	if d, _ := exec.Disbursements(ctx); len(d) != 1 {
		t.Fatalf("disbursements: %d", len(d))
	}

	log, err := audit.Open(ctx)
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer log.Close()
	if err := (collab.LocalAuditor{Log: log}).Record(ctx, "ClaimFiled", map[string]any{"claimId": "c1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := log.ByClaim(ctx, "c1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries: %+v %v", entries, err)
	}

	reg := watch.New(store.NewMemory[domain.Watch]())
	if err := (collab.LocalWatcher{Registry: reg}).Watch(ctx, domain.WatchRequest{VIN: "V1", Reason: "hail", ClaimID: "c1"}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if ws, _ := reg.List(ctx); len(ws) != 1 || ws[0].ClaimID != "c1" {
		t.Fatalf("watches: %+v", ws)
	}
}

func TestLocalAdaptersHonorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (collab.LocalValuator{Calculator: valuation.New(valuation.DefaultConfig())}).Valuate(ctx, domain.ValuationRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"LiquidCore/internal/chainio"
	"LiquidCore/internal/domain"
	"LiquidCore/internal/fixedpoint"
	"LiquidCore/internal/httpapi"
	"LiquidCore/internal/observability"
	"LiquidCore/internal/registry"
	"LiquidCore/internal/testutil"
)

func newTestServer(t *testing.T) (*httpapi.Server, *testutil.FakeChainReader, *testutil.FakeMarketRegistry) {
	t.Helper()
	reader := testutil.NewFakeChainReader()
	market := domain.MarketId(1)
	reader.BorrowIndexes[market] = fixedpoint.MustFromInt64(1)
	reader.ExchangeRates[market] = fixedpoint.MustFromString("0.02")

	reg := registry.New(reader, zerolog.Nop(), nil)
	if err := reg.Init(context.Background(), []domain.MarketId{market}); err != nil {
		t.Fatal(err)
	}

	marketReg := testutil.NewFakeMarketRegistry(fixedpoint.MustFromString("0.5"), fixedpoint.MustFromString("1.08")).
		WithMarket(market, "cETH", fixedpoint.MustFromString("0.75"))
	prices := testutil.NewFakePriceLedger()
	prices.Prices[market] = fixedpoint.MustFromString("1.0")

	health := observability.NewHealthChecker()
	health.SetReady(true)

	srv := httpapi.NewServer(reg, marketReg, prices, zerolog.Nop(), health, nil)
	return srv, reader, marketReg
}

func TestHandleRegister_ThenScan(t *testing.T) {
	srv, reader, marketReg := newTestServer(t)
	market := domain.MarketId(1)
	addr := "0x5555555555555555555555555555555555555555"
	reader.Snapshots[domain.MustParseAddress(addr)] = map[domain.MarketId]chainio.AccountSnapshot{
		market: {SuppliedCTokens: fixedpoint.MustFromInt64(100), BorrowBalance: fixedpoint.MustFromInt64(2), BorrowIndex: fixedpoint.MustFromInt64(1)},
	}
	marketReg.SetCollateral(domain.MustParseAddress(addr), market, true)

	regReq := httptest.NewRequest("POST", "/register", strings.NewReader(`{"addresses":["`+addr+`"]}`))
	regRec := httptest.NewRecorder()
	srv.ServeHTTP(regRec, regReq)
	if regRec.Code != 200 {
		t.Fatalf("register: got status %d, body %s", regRec.Code, regRec.Body.String())
	}

	scanReq := httptest.NewRequest("POST", "/scan", nil)
	scanRec := httptest.NewRecorder()
	srv.ServeHTTP(scanRec, scanReq)
	if scanRec.Code != 200 {
		t.Fatalf("scan: got status %d, body %s", scanRec.Code, scanRec.Body.String())
	}

	var candidates []map[string]any
	if err := json.Unmarshal(scanRec.Body.Bytes(), &candidates); err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one liquidation candidate, got %d: %v", len(candidates), candidates)
	}
}

func TestHandleRegister_InvalidAddress(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/register", strings.NewReader(`{"addresses":["not-an-address"]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleUnregister(t *testing.T) {
	srv, reader, _ := newTestServer(t)
	market := domain.MarketId(1)
	addr := "0x6666666666666666666666666666666666666666"
	reader.Snapshots[domain.MustParseAddress(addr)] = map[domain.MarketId]chainio.AccountSnapshot{market: {}}

	regReq := httptest.NewRequest("POST", "/register", strings.NewReader(`{"addresses":["`+addr+`"]}`))
	regRec := httptest.NewRecorder()
	srv.ServeHTTP(regRec, regReq)

	unregReq := httptest.NewRequest("POST", "/unregister", strings.NewReader(`{"address":"`+addr+`"}`))
	unregRec := httptest.NewRecorder()
	srv.ServeHTTP(unregRec, unregReq)
	if unregRec.Code != 204 {
		t.Fatalf("expected 204, got %d", unregRec.Code)
	}

	verifyReq := httptest.NewRequest("GET", "/verify/"+addr, nil)
	verifyRec := httptest.NewRecorder()
	srv.ServeHTTP(verifyRec, verifyReq)
	if verifyRec.Code != 404 {
		t.Fatalf("expected verify of unregistered address to 404, got %d", verifyRec.Code)
	}
}

func TestHealthz_AlwaysOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

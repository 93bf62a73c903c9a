package broker

import (
	"context"
	"testing"
)

func TestPaperBroker_InitialAccount(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()

	acct, err := pb.Account(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Cash != 500000 || acct.PortfolioValue != 500000 {
		t.Errorf("expected cash/portfolio 500000, got %+v", acct)
	}
}

func TestPaperBroker_BuyReducesCash(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("SPY", Quote{Bid: 449, Ask: 451})

	orderID, err := pb.SubmitMarket(ctx, "SPY", 10, OrderSideBuy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, err := pb.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", order.Status)
	}

	acct, _ := pb.Account(ctx)
	expectedCash := 500000.0 - 450.0*10
	if acct.Cash != expectedCash {
		t.Errorf("expected cash %.2f, got %.2f", expectedCash, acct.Cash)
	}
}

func TestPaperBroker_SellIncreasesCash(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("TQQQ", Quote{Bid: 59, Ask: 61})

	pb.SubmitMarket(ctx, "TQQQ", 5, OrderSideBuy)

	pb.SetQuote("TQQQ", Quote{Bid: 64, Ask: 66})
	orderID, err := pb.SubmitMarket(ctx, "TQQQ", 5, OrderSideSell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, _ := pb.GetOrder(ctx, orderID)
	if order.Status != OrderStatusFilled {
		t.Errorf("expected FILLED, got %s", order.Status)
	}

	acct, _ := pb.Account(ctx)
	expectedCash := 500000.0 - 60.0*5 + 65.0*5
	if acct.Cash != expectedCash {
		t.Errorf("expected cash %.2f, got %.2f", expectedCash, acct.Cash)
	}
}

func TestPaperBroker_RejectsInsufficientCash(t *testing.T) {
	pb := NewPaperBroker(1000)
	ctx := context.Background()
	pb.SetQuote("SPY", Quote{Bid: 449, Ask: 451})

	orderID, err := pb.SubmitMarket(ctx, "SPY", 10, OrderSideBuy)
	if err == nil {
		t.Fatal("expected error for insufficient cash")
	}

	order, _ := pb.GetOrder(ctx, orderID)
	if order.Status != OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status)
	}
}

func TestPaperBroker_RejectsInsufficientPosition(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("TQQQ", Quote{Bid: 59, Ask: 61})

	orderID, err := pb.SubmitMarket(ctx, "TQQQ", 10, OrderSideSell)
	if err == nil {
		t.Fatal("expected error for insufficient position")
	}

	order, _ := pb.GetOrder(ctx, orderID)
	if order.Status != OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", order.Status)
	}
}

func TestPaperBroker_PositionsTrack(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("KMLM", Quote{Bid: 29, Ask: 31})

	pb.SubmitMarket(ctx, "KMLM", 20, OrderSideBuy)

	positions, err := pb.Positions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions["KMLM"].Quantity != 20 {
		t.Errorf("unexpected position: %+v", positions["KMLM"])
	}
}

func TestPaperBroker_LimitOrderRestsWhenNotMarketable(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("BIL", Quote{Bid: 91, Ask: 91.5})

	orderID, err := pb.SubmitLimit(ctx, "BIL", 100, OrderSideBuy, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, _ := pb.GetOrder(ctx, orderID)
	if order.Status != OrderStatusOpen {
		t.Errorf("expected OPEN (limit below market), got %s", order.Status)
	}
}

func TestPaperBroker_CancelOrder(t *testing.T) {
	pb := NewPaperBroker(500000)
	ctx := context.Background()
	pb.SetQuote("BIL", Quote{Bid: 91, Ask: 91.5})

	orderID, _ := pb.SubmitLimit(ctx, "BIL", 100, OrderSideBuy, 90)
	if err := pb.CancelOrder(ctx, orderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, _ := pb.GetOrder(ctx, orderID)
	if order.Status != OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", order.Status)
	}
}

package kiwoom

import (
	"tesfeed/internal/domain"
	"tesfeed/internal/schema"
)

// Alias sets for the dashboard rows. Bridges mix English and the broker's
// native Korean field names depending on which upstream API produced a row.
var (
	holdingCodeKeys     = []string{"code", "종목코드"}
	holdingNameKeys     = []string{"name", "종목명"}
	holdingQtyKeys      = []string{"qty", "보유수량"}
	holdingAvgKeys      = []string{"avg_price", "매입가"}
	holdingPriceKeys    = []string{"price", "현재가"}
	holdingPnLKeys      = []string{"pnl", "평가손익"}
	holdingPnLRateKeys  = []string{"pnl_rate", "수익률(%)"}
	orderNoKeys         = []string{"order_no", "주문번호"}
	orderSideKeys       = []string{"type", "주문구분"}
	orderPriceKeys      = []string{"price", "주문가격", "현재가"}
	orderQtyKeys        = []string{"qty", "주문수량"}
	orderRemainKeys     = []string{"remain", "미체결수량"}
	orderStatusKeys     = []string{"status", "주문상태"}
)

// ParseDashboard converts the bridge's raw dashboard payload into a typed
// snapshot, coalescing field aliases and coercing numerics once at the edge.
func ParseDashboard(raw map[string]any) domain.DashboardSnapshot {
	snap := domain.DashboardSnapshot{
		AccountNo: asString(raw["AccountNo"]),
		FetchedAt: asString(raw["FetchedAt"]),
		Totals: domain.DashboardTotals{
			TotalPurchase:   schema.SignedNum(raw["TotalPurchase"]),
			TotalEvaluation: schema.SignedNum(raw["TotalEvaluation"]),
			TotalPnL:        schema.SignedNum(raw["TotalPnL"]),
			TotalPnLRate:    schema.SignedNum(raw["TotalPnLRate"]),
			RealizedPnL:     schema.SignedNum(raw["RealizedPnL"]),
		},
	}

	if rows, ok := raw["Holdings"].([]any); ok {
		snap.Holdings = parseHoldings(rows)
	}
	if rows, ok := raw["Outstanding"].([]any); ok {
		snap.Outstanding = parseOutstanding(rows)
	}
	return snap
}

func parseHoldings(rows []any) []domain.Holding {
	out := make([]domain.Holding, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		cv, _ := schema.FirstValid(row, holdingCodeKeys)
		code := NormalizeCode(asString(cv))
		if code == "" {
			continue
		}
		nv, _ := schema.FirstValid(row, holdingNameKeys)
		name := asString(nv)
		if name == "" {
			name = code
		}
		qv, _ := schema.FirstValid(row, holdingQtyKeys)
		av, _ := schema.FirstValid(row, holdingAvgKeys)
		pv, _ := schema.FirstValid(row, holdingPriceKeys)
		plv, _ := schema.FirstValid(row, holdingPnLKeys)
		prv, _ := schema.FirstValid(row, holdingPnLRateKeys)
		out = append(out, domain.Holding{
			Code:     code,
			Name:     name,
			Quantity: schema.AbsNum(qv),
			AvgPrice: schema.AbsNum(av),
			CurPrice: schema.AbsNum(pv),
			PnL:      schema.SignedNum(plv),
			PnLRate:  schema.SignedNum(prv),
		})
	}
	return out
}

func parseOutstanding(rows []any) []domain.OutstandingOrder {
	out := make([]domain.OutstandingOrder, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ov, _ := schema.FirstValid(row, orderNoKeys)
		cv, _ := schema.FirstValid(row, holdingCodeKeys)
		nv, _ := schema.FirstValid(row, holdingNameKeys)
		sv, _ := schema.FirstValid(row, orderSideKeys)
		pv, _ := schema.FirstValid(row, orderPriceKeys)
		qv, _ := schema.FirstValid(row, orderQtyKeys)
		rv, _ := schema.FirstValid(row, orderRemainKeys)
		stv, _ := schema.FirstValid(row, orderStatusKeys)
		out = append(out, domain.OutstandingOrder{
			OrderNo:  asString(ov),
			Code:     NormalizeCode(asString(cv)),
			Name:     asString(nv),
			Side:     asString(sv),
			Price:    schema.AbsNum(pv),
			Quantity: schema.AbsNum(qv),
			Unfilled: schema.AbsNum(rv),
			Status:   asString(stv),
		})
	}
	return out
}

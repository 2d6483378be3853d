package dto

type SalesDailyPoint struct {
	Day         string `json:"day"`
	Orders      int64  `json:"orders"`
	AmountCents int64  `json:"amountCents"`
	FeeCents    int64  `json:"feeCents"`
}

type SalesDailyResponse struct {
	Points []SalesDailyPoint `json:"points"`
}

type SalesSummaryResponse struct {
	CompletedOrders int64 `json:"completedOrders"`
	PendingOrders   int64 `json:"pendingOrders"`
	RejectedOrders  int64 `json:"rejectedOrders"`
	FailedOrders    int64 `json:"failedOrders"`
	RevenueCents    int64 `json:"revenueCents"`
	FeeCents        int64 `json:"feeCents"`
}

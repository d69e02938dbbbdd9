package models

// Account — состояние счёта у брокера.
type Account struct {
	Equity      float64
	BuyingPower float64
}

// BrokerPosition — позиция, как её видит брокер. Ground truth
// для реконсиляции.
type BrokerPosition struct {
	Ticker        string
	Side          Side
	Units         float64
	AvgEntryPrice float64
}

// BrokerOrderUpdate — ответ брокера на poll по ордеру.
type BrokerOrderUpdate struct {
	OrderRef     string
	Status       OrderStatus
	FilledUnits  float64
	AvgFillPrice float64
}

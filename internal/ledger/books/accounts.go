package books

// AccountMap names the ledger accounts the facade posts against. The
// defaults follow the baseline chart shipped in migrations.
type AccountMap struct {
	TradeReceivables string
	VATReceivable    string
	BankAccount      string
	Cash             string
	TradePayables    string
	VATPayable       string
	SalesRevenue     string
	ServiceExpenses  string
	BankCharges      string
}

// DefaultAccountMap returns the baseline account codes.
func DefaultAccountMap() AccountMap {
	return AccountMap{
		TradeReceivables: "1410",
		VATReceivable:    "1411",
		BankAccount:      "1432",
		Cash:             "1431",
		TradePayables:    "2310",
		VATPayable:       "2321",
		SalesRevenue:     "4100",
		ServiceExpenses:  "3200",
		BankCharges:      "3500",
	}
}

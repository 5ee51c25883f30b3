package rules

// BuiltinRules returns the screening rules shipped with the system. They
// cover the recurring manual screens analysts run before the dedicated
// detectors: large cash handling, foreign-currency transfers, machinery
// vendors behind transport declarations and wallet micropayments.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Name:       "high_value_cash",
			Expression: `op_group in ["RETIRO", "DEPOSITO", "DISP EFECTIVO"] && amount >= 10000.0`,
			Enabled:    true,
		},
		{
			Name:       "foreign_currency_transfer",
			Expression: `currency == "USD" && op_group in ["TRANSFERENCIA", "TT OTRA CTA", "CHEQUE"] && amount >= 5000.0`,
			Enabled:    true,
		},
		{
			Name: "machinery_vendor_memo",
			Expression: `direction == "out" && (activity.contains("TRANSP") || activity.contains("CONSTRUC")) && ` +
				`(memo.contains("FERREYROS") || memo.contains("VOLVO") || memo.contains("SCANIA") || ` +
				`memo.contains("KOMATSU") || memo.contains("MAQUINARIA") || memo.contains("CATERPILLAR"))`,
			Enabled: true,
		},
		{
			Name:       "wallet_micropayment",
			Expression: `op_group in ["YAPE", "PLIN"] && amount < 500.0`,
			Enabled:    true,
		},
	}
}

package detect

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/normalize"
)

// TextMineConfig parameterizes memo text mining.
type TextMineConfig struct {
	// MinClients keeps only tokens used by at least this many distinct
	// clients. Single-client tokens are not cross-client signals.
	MinClients int

	// TopN truncates the ranked token list; 0 keeps all.
	TopN int

	// Exclusions drops generic banking vocabulary before counting.
	Exclusions []string

	// MinTokenLen keeps tokens strictly longer than this; zero selects the
	// default of four characters.
	MinTokenLen int
}

// TokenStat is one shared memo token with its spread across clients.
type TokenStat struct {
	Token   string  `json:"token"`
	Count   int     `json:"count"`
	Clients int     `json:"clients"`
	Amount  float64 `json:"amount"`
}

// TextMine tokenizes every outflow's normalized memo and surfaces tokens
// shared by multiple clients, inferring common beneficiaries or vendors
// behind separately-described payments. Ranked by distinct-client count
// descending, first-seen order breaking ties.
func TextMine(rows []*domain.Transaction, cfg TextMineConfig) []TokenStat {
	minLen := cfg.MinTokenLen
	if minLen <= 0 {
		minLen = 4
	}

	excluded := make(map[string]struct{}, len(cfg.Exclusions))
	for _, e := range cfg.Exclusions {
		excluded[strings.ToUpper(strings.TrimSpace(e))] = struct{}{}
	}

	type tokenData struct {
		count   int
		clients map[string]struct{}
		amount  float64
	}
	tokens := make(map[string]*tokenData)
	order := make([]string, 0)

	for _, tx := range rows {
		if tx.Direction != domain.DirectionOut {
			continue
		}
		for _, tok := range normalize.Tokens(tx.NormalizedMemo) {
			if utf8.RuneCountInString(tok) <= minLen {
				continue
			}
			if _, skip := excluded[tok]; skip {
				continue
			}
			d, ok := tokens[tok]
			if !ok {
				d = &tokenData{clients: make(map[string]struct{})}
				tokens[tok] = d
				order = append(order, tok)
			}
			d.count++
			d.clients[tx.ClientID] = struct{}{}
			d.amount += tx.Amount
		}
	}

	stats := make([]TokenStat, 0, len(order))
	for _, tok := range order {
		d := tokens[tok]
		if len(d.clients) < cfg.MinClients {
			continue
		}
		stats = append(stats, TokenStat{
			Token:   tok,
			Count:   d.count,
			Clients: len(d.clients),
			Amount:  d.amount,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Clients > stats[j].Clients })
	if cfg.TopN > 0 && len(stats) > cfg.TopN {
		stats = stats[:cfg.TopN]
	}
	return stats
}

// TextMineTable renders mined tokens for display and export.
func TextMineTable(stats []TokenStat) *Table {
	table := NewTable(DetectorTextMining, "Palabra", "Frecuencia", "Num Clientes", "Monto Total")
	for _, s := range stats {
		table.Append(s.Token, s.Count, s.Clients, round2(s.Amount))
	}
	return table
}

// SharedVendorsTable renders the same statistics under the shared-vendor
// network view, which ranks by the number of clients paying the same
// counterparty token.
func SharedVendorsTable(stats []TokenStat) *Table {
	table := NewTable(DetectorSharedVendors, "Proveedor/Entidad", "Clientes", "Monto Total")
	for _, s := range stats {
		table.Append(s.Token, s.Clients, round2(s.Amount))
	}
	return table
}

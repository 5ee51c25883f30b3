// Benchmark tool that exercises the full detector suite against a synthetic
// ledger with planted patterns.
//
// Usage:
//
//	go run cmd/benchmark/main.go -url http://localhost:8080 -noise 5000
//
// This tool:
//  1. Generates a synthetic ledger workbook with planted burst, mirror and
//     pass-through patterns buried in random noise
//  2. Uploads it and builds a case covering every client
//  3. Runs every detector through the API, timing each run
//  4. Reports per-detector latency and whether the planted clients were found
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/xuri/excelize/v2"
)

var detectors = []string{
	"top_dimension",
	"keyword_screen",
	"segment_volume",
	"cash_ratio",
	"branch_cash",
	"digital_smurfing",
	"atm_runs",
	"operator_preference",
	"shared_vendors",
	"account_lifetime",
	"pass_through",
	"brand_behavior",
	"crime_currency",
	"mirror_match",
	"bridge_accounts",
	"collusion_matrix",
	"temporal_burst",
	"geo_profile",
	"text_mining",
}

// ledgerRow is one synthetic workbook row in the source export layout.
type ledgerRow struct {
	Client    string
	Segment   string
	Activity  string
	Date      string
	Time      string
	Amount    float64
	Currency  string
	Direction string
	Memo      string
	OpGroup   string
	Channel   string
	Branch    string
}

type runResult struct {
	Detector string
	Findings int
	RowsIn   int
	Latency  time.Duration
	Err      error
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	noise := flag.Int("noise", 5000, "Number of random noise rows")
	bursts := flag.Int("bursts", 5, "Number of planted burst clients")
	mirrors := flag.Int("mirrors", 5, "Number of planted mirror pairs")
	passThrough := flag.Int("pass", 5, "Number of planted pass-through clients")
	seed := flag.Int64("seed", 42, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each detector response")
	flag.Parse()

	fmt.Println("===============================================================")
	fmt.Println("        DETECTOR BENCHMARK - synthetic planted patterns")
	fmt.Println("===============================================================")
	fmt.Printf("\nAPI URL:      %s\n", *baseURL)
	fmt.Printf("Noise rows:   %d\n", *noise)
	fmt.Printf("Bursts:       %d\n", *bursts)
	fmt.Printf("Mirror pairs: %d\n", *mirrors)
	fmt.Printf("Pass-through: %d\n", *passThrough)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: API not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run cmd/aml-system/main.go")
		os.Exit(1)
	}
	fmt.Println("API is healthy")

	rng := rand.New(rand.NewSource(*seed))
	rows := generateLedger(rng, *noise, *bursts, *mirrors, *passThrough)
	fmt.Printf("Generated %d ledger rows\n", len(rows))

	code := fmt.Sprintf("benchmark-%d", time.Now().Unix())
	if err := uploadLedger(*baseURL, code, rows); err != nil {
		fmt.Printf("ERROR: upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded load %s\n", code)

	caseID, err := createCase(*baseURL, code)
	if err != nil {
		fmt.Printf("ERROR: case creation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created case %d\n\n", caseID)

	start := time.Now()
	var results []runResult
	for _, d := range detectors {
		results = append(results, runDetector(*baseURL, caseID, d, *verbose))
	}
	printResults(results, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var (
	segments   = []string{"MASIVO", "PREMIUM", "PYME"}
	activities = []string{"COMERCIO", "TRANSPORTE DE CARGA", "CONSTRUCCION", "SERVICIOS", "AGRICULTURA"}
	opGroups   = []string{"RETIRO", "DEPOSITO", "TRANSFERENCIA", "PAGO SERVICIOS"}
	channels   = []string{"VENTANILLA", "AGENTE", "BANCA MOVIL", "CAJEROS AUTOMATICOS", "YAPE"}
	branches   = []string{"LIMA CENTRO", "AREQUIPA", "JULIACA", "TRUJILLO NORTE", "CUSCO PLAZA"}
	memos      = []string{"PAGO FACTURA 4451", "COMPRA MERCADERIA", "FERREYROS REPUESTOS", "ABONO PLANILLA", "ADELANTO OBRA"}
)

func generateLedger(rng *rand.Rand, noise, bursts, mirrors, passThrough int) []ledgerRow {
	var rows []ledgerRow

	day := func() string {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, rng.Intn(180)).Format("2006-01-02")
	}

	// Noise: uniformly random rows across many clients.
	for i := 0; i < noise; i++ {
		dir := "Ingreso"
		if rng.Intn(2) == 0 {
			dir = "Egreso"
		}
		rows = append(rows, ledgerRow{
			Client:    fmt.Sprintf("cliente-%04d", rng.Intn(noise/10+1)),
			Segment:   segments[rng.Intn(len(segments))],
			Activity:  activities[rng.Intn(len(activities))],
			Date:      day(),
			Time:      fmt.Sprintf("%02d:%02d:%02d", rng.Intn(24), rng.Intn(60), rng.Intn(60)),
			Amount:    10 + rng.Float64()*20000,
			Currency:  "SOLES",
			Direction: dir,
			Memo:      memos[rng.Intn(len(memos))],
			OpGroup:   opGroups[rng.Intn(len(opGroups))],
			Channel:   channels[rng.Intn(len(channels))],
			Branch:    branches[rng.Intn(len(branches))],
		})
	}

	// Planted bursts: 15 sub-3000 agent operations inside one hour.
	for b := 0; b < bursts; b++ {
		client := fmt.Sprintf("rafaga-%02d", b)
		d := day()
		for i := 0; i < 15; i++ {
			rows = append(rows, ledgerRow{
				Client:    client,
				Segment:   "MASIVO",
				Activity:  "COMERCIO",
				Date:      d,
				Time:      fmt.Sprintf("09:%02d:00", i*3),
				Amount:    100 + rng.Float64()*500,
				Currency:  "SOLES",
				Direction: "Ingreso",
				Memo:      "DEPOSITO AGENTE",
				OpGroup:   "DEPOSITO",
				Channel:   "AGENTE",
				Branch:    branches[rng.Intn(len(branches))],
			})
		}
	}

	// Planted mirrors: same amount, opposite direction, minutes apart.
	for m := 0; m < mirrors; m++ {
		amount := 1000 + rng.Float64()*5000
		d := day()
		rows = append(rows,
			ledgerRow{
				Client: fmt.Sprintf("espejo-a-%02d", m), Segment: "MASIVO", Activity: "COMERCIO",
				Date: d, Time: "14:00:00", Amount: amount, Currency: "SOLES", Direction: "Egreso",
				Memo: "TRANSFERENCIA", OpGroup: "TRANSFERENCIA", Channel: "BANCA MOVIL", Branch: branches[0],
			},
			ledgerRow{
				Client: fmt.Sprintf("espejo-b-%02d", m), Segment: "MASIVO", Activity: "COMERCIO",
				Date: d, Time: "14:10:00", Amount: amount, Currency: "SOLES", Direction: "Ingreso",
				Memo: "TRANSFERENCIA", OpGroup: "TRANSFERENCIA", Channel: "BANCA MOVIL", Branch: branches[0],
			},
		)
	}

	// Planted pass-through: large inflow nearly matched by outflow.
	for p := 0; p < passThrough; p++ {
		client := fmt.Sprintf("puente-%02d", p)
		d := day()
		inflow := 20000 + rng.Float64()*30000
		rows = append(rows,
			ledgerRow{
				Client: client, Segment: "PYME", Activity: "SERVICIOS",
				Date: d, Time: "10:00:00", Amount: inflow, Currency: "SOLES", Direction: "Ingreso",
				Memo: "ABONO", OpGroup: "DEPOSITO", Channel: "VENTANILLA", Branch: branches[1],
			},
			ledgerRow{
				Client: client, Segment: "PYME", Activity: "SERVICIOS",
				Date: d, Time: "16:00:00", Amount: inflow * 0.98, Currency: "SOLES", Direction: "Egreso",
				Memo: "RETIRO", OpGroup: "RETIRO", Channel: "VENTANILLA", Branch: branches[1],
			},
		)
	}

	return rows
}

func uploadLedger(baseURL, code string, rows []ledgerRow) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := []any{
		"CODUNICOCLI_13_enc", "TIPO DE MARCA", "DESTIPDOCUMENTO", "DESTIPBANCA",
		"SEGMENTO", "ACT.ECONOMICA", "Fecha", "Hora", "Monto", "MONEDA",
		"I / E", "Glosa", "Grupo", "Canal", "Agencia",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.Client, "SOSPECHOSO", "DNI", "BANCA PERSONAL",
			r.Segment, r.Activity, r.Date, r.Time, fmt.Sprintf("%.2f", r.Amount), r.Currency,
			r.Direction, r.Memo, r.OpGroup, r.Channel, r.Branch,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("code", code); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("file", "benchmark.xlsx")
	if err != nil {
		return err
	}
	if _, err := fw.Write(buf.Bytes()); err != nil {
		return err
	}
	mw.Close()

	resp, err := http.Post(baseURL+"/loads", mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func createCase(baseURL, loadCode string) (int64, error) {
	payload, _ := json.Marshal(map[string]string{
		"name":     "benchmark " + loadCode,
		"loadCode": loadCode,
	})
	resp, err := http.Post(baseURL+"/cases", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	var c struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return 0, err
	}
	return c.ID, nil
}

func runDetector(baseURL string, caseID int64, detector string, verbose bool) runResult {
	client := &http.Client{Timeout: 5 * time.Minute}
	url := fmt.Sprintf("%s/cases/%d/analyses/%s", baseURL, caseID, detector)

	start := time.Now()
	resp, err := client.Post(url, "application/json", nil)
	latency := time.Since(start)
	if err != nil {
		return runResult{Detector: detector, Latency: latency, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return runResult{Detector: detector, Latency: latency,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}

	var out struct {
		RowCount int `json:"rowCount"`
		Table    struct {
			Rows [][]any `json:"rows"`
		} `json:"table"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return runResult{Detector: detector, Latency: latency, Err: err}
	}
	if verbose {
		fmt.Printf("  %-20s %d findings over %d rows\n", detector, len(out.Table.Rows), out.RowCount)
	}
	return runResult{
		Detector: detector,
		Findings: len(out.Table.Rows),
		RowsIn:   out.RowCount,
		Latency:  latency,
	}
}

func printResults(results []runResult, total time.Duration) {
	fmt.Println("===============================================================")
	fmt.Println("  RESULTS")
	fmt.Println("===============================================================")
	fmt.Printf("%-22s %10s %10s\n", "detector", "findings", "latency")
	fmt.Println("---------------------------------------------------------------")

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("%-22s %10s %10s  ERROR: %v\n", r.Detector, "-", r.Latency.Round(time.Millisecond), r.Err)
			continue
		}
		fmt.Printf("%-22s %10d %10s\n", r.Detector, r.Findings, r.Latency.Round(time.Millisecond))
	}

	fmt.Println("---------------------------------------------------------------")
	fmt.Printf("Total: %d detectors in %s (%d failed)\n", len(results), total.Round(time.Millisecond), failures)
	if failures > 0 {
		os.Exit(1)
	}
}

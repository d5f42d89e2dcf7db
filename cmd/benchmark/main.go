// Benchmark drives a running Kestrel instance with claim scoring traffic.
//
// Claims come either from a labeled CSV file (columns: hospital_code,
// doctor_id, icd10_code, patient_gender, care_class, tarif_inacbg,
// tarif_rs, los_days, num_procedures, is_fraud) or from the built-in
// synthetic generator, which injects billing-inflation patterns at a
// configurable rate. Reports latency percentiles, throughput, and a
// confusion matrix against the known labels.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim is a scoring request plus its ground-truth label.
type LabeledClaim struct {
	HospitalCode  string
	DoctorID      string
	ICD10Code     string
	PatientGender string
	CareClass     string
	TarifINACBG   float64
	TarifRS       float64
	LOSDays       int
	NumProcedures int
	IsFraud       bool
}

// ScoreRequest mirrors the Kestrel /score request payload.
type ScoreRequest struct {
	HospitalCode  string  `json:"hospital_code"`
	DoctorID      string  `json:"doctor_id"`
	ICD10Code     string  `json:"icd10_code"`
	PatientGender string  `json:"patient_gender"`
	CareClass     string  `json:"care_class"`
	TarifINACBG   float64 `json:"tarif_inacbg"`
	TarifRS       float64 `json:"tarif_rs"`
	LOSDays       int     `json:"los_days"`
	NumProcedures int     `json:"num_procedures"`
}

// ScoreResponse is the Kestrel API response format.
type ScoreResponse struct {
	ClaimID          string  `json:"claim_id"`
	AssessmentID     string  `json:"assessment_id"`
	IsFraud          bool    `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`
	RiskScore        int     `json:"risk_score"`
	RiskLevel        string  `json:"risk_level"`
	Recommendation   struct {
		Action string `json:"action"`
	} `json:"recommendation"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged as fraud
	FalsePositives int64 // Legitimate flagged as fraud
	TrueNegatives  int64 // Legitimate passed
	FalseNegatives int64 // Fraud passed (missed!)

	TotalProcessed int64
	TotalFraud     int64
	TotalLegit     int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled claims CSV (omit for synthetic claims)")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	count := flag.Int("count", 10000, "Number of synthetic claims to generate")
	limit := flag.Int("limit", 0, "Maximum CSV rows to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud-rate", 0.05, "Fraction of synthetic claims with injected fraud patterns")
	seed := flag.Int64("seed", 42, "Random seed for synthetic claims")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Claim Scoring Load Test          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	if *csvPath != "" {
		fmt.Printf("CSV File:    %s\n", *csvPath)
		fmt.Printf("Limit:       %d\n", *limit)
	} else {
		fmt.Printf("Claims:      %d synthetic\n", *count)
		fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
		fmt.Printf("Seed:        %d\n", *seed)
	}
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	var claims []LabeledClaim
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading labeled claims from %s...\n", *csvPath)
		claims, err = readClaimsCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		claims = generateClaims(*count, *fraudRate, *seed)
	}
	fmt.Printf("✓ Loaded %d claims\n", len(claims))

	fraudCount := 0
	for _, c := range claims {
		if c.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:      %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(claims)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(claims)-fraudCount, 100*float64(len(claims)-fraudCount)/float64(len(claims)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(claims, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

// generateClaims builds a synthetic claim mix. Legitimate claims bill
// close to the INA-CBG tariff; fraudulent claims combine an inflated
// tariff gap with long stays and procedure stacking.
func generateClaims(count int, fraudRate float64, seed int64) []LabeledClaim {
	rng := rand.New(rand.NewSource(seed))

	hospitals := []string{"RS001", "RS002", "RS003", "RS004", "RS005"}
	icd10 := []string{"J18.9", "A09", "I10", "E11.9", "K35.8", "O80.0"}
	genders := []string{"L", "P"}
	classes := []string{"1", "2", "3"}

	claims := make([]LabeledClaim, 0, count)
	for i := 0; i < count; i++ {
		reference := 2000000 + rng.Float64()*8000000
		isFraud := rng.Float64() < fraudRate

		var c LabeledClaim
		c.HospitalCode = hospitals[rng.Intn(len(hospitals))]
		c.DoctorID = fmt.Sprintf("DOC%03d", rng.Intn(40)+1)
		c.ICD10Code = icd10[rng.Intn(len(icd10))]
		c.PatientGender = genders[rng.Intn(len(genders))]
		c.CareClass = classes[rng.Intn(len(classes))]
		c.TarifINACBG = reference
		c.IsFraud = isFraud

		if isFraud {
			// Billed well above the INA-CBG reference, padded stay.
			c.TarifRS = reference * (1.5 + rng.Float64()*1.5)
			c.LOSDays = 7 + rng.Intn(14)
			c.NumProcedures = 4 + rng.Intn(6)
		} else {
			c.TarifRS = reference * (0.85 + rng.Float64()*0.35)
			c.LOSDays = 1 + rng.Intn(5)
			c.NumProcedures = rng.Intn(4)
		}

		claims = append(claims, c)
	}
	return claims
}

func readClaimsCSV(path string, limit int) ([]LabeledClaim, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"hospital_code", "doctor_id", "icd10_code", "patient_gender", "care_class", "tarif_inacbg", "tarif_rs", "is_fraud"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var claims []LabeledClaim
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		tarifINACBG, _ := strconv.ParseFloat(record[colIndex["tarif_inacbg"]], 64)
		tarifRS, _ := strconv.ParseFloat(record[colIndex["tarif_rs"]], 64)
		losDays := 1
		if idx, ok := colIndex["los_days"]; ok {
			losDays, _ = strconv.Atoi(record[idx])
		}
		numProcedures := 0
		if idx, ok := colIndex["num_procedures"]; ok {
			numProcedures, _ = strconv.Atoi(record[idx])
		}

		claims = append(claims, LabeledClaim{
			HospitalCode:  record[colIndex["hospital_code"]],
			DoctorID:      record[colIndex["doctor_id"]],
			ICD10Code:     record[colIndex["icd10_code"]],
			PatientGender: record[colIndex["patient_gender"]],
			CareClass:     record[colIndex["care_class"]],
			TarifINACBG:   tarifINACBG,
			TarifRS:       tarifRS,
			LOSDays:       losDays,
			NumProcedures: numProcedures,
			IsFraud:       record[colIndex["is_fraud"]] == "1",
		})

		if limit > 0 && len(claims) >= limit {
			break
		}
	}

	return claims, nil
}

func runBenchmark(claims []LabeledClaim, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{latencies: make([]time.Duration, 0, len(claims))}

	work := make(chan LabeledClaim, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := scoreClaim(client, baseURL, tenantID, c)
				elapsed := time.Since(start)

				metrics.recordLatency(elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s/%s -> %v\n", c.HospitalCode, c.DoctorID, err)
					}
					continue
				}

				if c.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegit, 1)
				}

				predicted := result.IsFraud
				actual := c.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %s %-6s | %-6s | Ratio: %5.2f | Fraud: %-5v | Kestrel: %-8s (score %3d) | %s\n",
						status,
						c.HospitalCode,
						c.DoctorID,
						c.ICD10Code,
						c.TarifRS/c.TarifINACBG,
						c.IsFraud,
						result.RiskLevel,
						result.RiskScore,
						result.Recommendation.Action,
					)
				}
			}
		}()
	}

	for _, c := range claims {
		work <- c
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreClaim(client *http.Client, baseURL, tenantID string, c LabeledClaim) (*ScoreResponse, error) {
	req := ScoreRequest{
		HospitalCode:  c.HospitalCode,
		DoctorID:      c.DoctorID,
		ICD10Code:     c.ICD10Code,
		PatientGender: c.PatientGender,
		CareClass:     c.CareClass,
		TarifINACBG:   c.TarifINACBG,
		TarifRS:       c.TarifRS,
		LOSDays:       c.LOSDays,
		NumProcedures: c.NumProcedures,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Legitimate: %d\n", m.TotalLegit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   FRAUD       CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged claims, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalLegit > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLegit) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegit, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var totalLatency time.Duration
		for _, d := range sorted {
			totalLatency += d
		}
		avg := totalLatency / time.Duration(len(sorted))
		cps := float64(m.TotalProcessed) / duration.Seconds()

		fmt.Printf("   Avg Latency:      %v\n", avg.Round(10*time.Microsecond))
		fmt.Printf("   p50 Latency:      %v\n", percentile(sorted, 0.50).Round(10*time.Microsecond))
		fmt.Printf("   p90 Latency:      %v\n", percentile(sorted, 0.90).Round(10*time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", percentile(sorted, 0.99).Round(10*time.Microsecond))
		fmt.Printf("   Throughput:       %.2f claims/sec\n", cps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else {
		fmt.Println("   ⚠️  Low precision - review screen rules and threshold")
	}

	fmt.Println()
}

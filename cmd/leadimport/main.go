// Import tool for loading CRM lead exports into leadaging.
//
// Usage:
//   go run cmd/leadimport/main.go -csv /path/to/leads.csv -url http://localhost:8080
//
// This tool:
//   1. Reads leads from a CSV export (one lead per row, header required)
//   2. Posts each lead to POST /leads with a bounded pool of workers
//   3. Triggers POST /analysis/run for the tenant
//   4. Prints the resulting category and risk distribution
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Metrics tracks import results
type Metrics struct {
	Imported int64
	Rejected int64
	Errors   int64

	ProcessingTimeMs int64
}

// runResponse is the part of the POST /analysis/run answer the tool reads
type runResponse struct {
	Report   *domain.AgingReport       `json:"report"`
	Rejected []*domain.ValidationError `json:"rejected"`
}

func main() {
	csvPath := flag.String("csv", "", "Path to lead CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "leadaging base URL")
	tenantID := flag.String("tenant", "import", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum leads to import (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	skipRun := flag.Bool("skip-analysis", false, "Import only, do not trigger an analysis run")
	verbose := flag.Bool("verbose", false, "Print each lead result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: leadimport -csv /path/to/leads.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *workers <= 0 {
		*workers = 1
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                  LEADAGING - LEAD IMPORT                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: leadaging not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}
	fmt.Println("✓ leadaging is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	leads, skipped, err := readLeads(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d leads (%d malformed rows skipped)\n", len(leads), skipped)

	fmt.Printf("\nImporting with %d workers...\n", *workers)
	client := &http.Client{Timeout: 30 * time.Second}
	start := time.Now()
	metrics := importLeads(client, leads, *baseURL, *tenantID, *workers, *verbose)
	printImport(metrics, time.Since(start))

	if *skipRun {
		return
	}

	fmt.Println("\nRunning analysis...")
	result, err := runAnalysis(client, *baseURL, *tenantID)
	if err != nil {
		fmt.Printf("ERROR: analysis failed: %v\n", err)
		os.Exit(1)
	}
	printDistribution(result)
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

func importLeads(client *http.Client, leads []*domain.Lead, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan *domain.Lead, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for lead := range work {
				start := time.Now()
				status, err := postLead(client, baseURL, tenantID, lead)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())

				switch {
				case err != nil:
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", lead.ID, err)
					}
				case status == http.StatusBadRequest:
					atomic.AddInt64(&metrics.Rejected, 1)
					if verbose {
						fmt.Printf("✗ %s rejected\n", lead.ID)
					}
				default:
					atomic.AddInt64(&metrics.Imported, 1)
					if verbose {
						fmt.Printf("✓ %s\n", lead.ID)
					}
				}
			}
		}()
	}

	for _, lead := range leads {
		work <- lead
	}
	close(work)

	wg.Wait()

	return metrics
}

// postLead returns the HTTP status for 201 and 400 answers and an error
// for anything else.
func postLead(client *http.Client, baseURL, tenantID string, lead *domain.Lead) (int, error) {
	body, err := json.Marshal(lead)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/leads", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusBadRequest:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
}

func runAnalysis(client *http.Client, baseURL, tenantID string) (*runResponse, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/analysis/run", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result runResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Report == nil {
		return nil, fmt.Errorf("analysis returned no report")
	}
	return &result, nil
}

func printImport(m *Metrics, duration time.Duration) {
	total := m.Imported + m.Rejected + m.Errors
	fmt.Printf("\n📥 IMPORT\n")
	fmt.Printf("   Imported:  %d\n", m.Imported)
	fmt.Printf("   Rejected:  %d\n", m.Rejected)
	fmt.Printf("   Errors:    %d\n", m.Errors)
	fmt.Printf("   Duration:  %s\n", duration.Round(time.Millisecond))
	if total > 0 {
		fmt.Printf("   Avg POST:  %.2f ms\n", float64(m.ProcessingTimeMs)/float64(total))
	}
}

func printDistribution(r *runResponse) {
	rep := r.Report

	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     AGING DISTRIBUTION                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\n   Report:     %s\n", rep.ID)
	fmt.Printf("   Leads:      %d (rejected %d)\n", rep.LeadCount, rep.RejectedLeads)

	fmt.Printf("\n📊 BY CATEGORY\n")
	for _, c := range domain.Categories() {
		fmt.Printf("   %-8s %6d  %s\n", c, rep.ByCategory[c], bar(rep.ByCategory[c], rep.LeadCount))
	}

	fmt.Printf("\n⚠️  BY RISK\n")
	for _, rl := range domain.RiskLevels() {
		fmt.Printf("   %-8s %6d  %s\n", rl, rep.ByRisk[rl], bar(rep.ByRisk[rl], rep.LeadCount))
	}

	fmt.Printf("\n📈 AVERAGES\n")
	fmt.Printf("   Urgency:     %.1f\n", rep.AverageUrgency)
	fmt.Printf("   Conversion:  %.1f%%\n", rep.AverageConversion)
	fmt.Printf("   Overdue:     %d\n", rep.OverdueFollowUps)
	fmt.Printf("   Notify:      %d\n", rep.NotificationsDue)

	if len(rep.UrgentLeads) > 0 {
		fmt.Printf("\n🔥 MOST URGENT\n")
		for _, a := range rep.UrgentLeads {
			fmt.Printf("   %-20s %-7s %-9s urgency %5.1f  %s\n", a.LeadID, a.AgingCategory, a.RiskLevel, a.UrgencyScore, a.RecommendedAction)
		}
	}
	fmt.Println()
}

func bar(n, total int) string {
	if total == 0 {
		return ""
	}
	width := n * 40 / total
	return string(bytes.Repeat([]byte("█"), width))
}

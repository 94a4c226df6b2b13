// Command seed writes sample inbound and outbound workbooks for local uploads.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

func main() {
	dir := flag.String("dir", "testdata/seed", "output directory")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to cover (YYYY-MM)")
	rows := flag.Int("rows", 120, "data rows per workbook")
	seed := flag.Int64("seed", 7, "random seed")
	flag.Parse()

	start, err := time.Parse("2006-01", *month)
	if err != nil {
		log.Fatalf("parse month: %v", err)
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create dir: %v", err)
	}
	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("→ Writing inbound workbook...")
	if err := writeInbound(filepath.Join(*dir, "inbound.xlsx"), start, *rows, rng); err != nil {
		log.Fatalf("inbound: %v", err)
	}
	fmt.Println("→ Writing outbound workbook...")
	if err := writeOutbound(filepath.Join(*dir, "outbound.xlsx"), start, *rows, rng); err != nil {
		log.Fatalf("outbound: %v", err)
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

var parties = []string{"Acme Retail", "Northwind Stores", "Blue Harbor", "Sunrise Mart"}

func dayIn(start time.Time, rng *rand.Rand) time.Time {
	days := start.AddDate(0, 1, 0).Sub(start).Hours() / 24
	return start.AddDate(0, 0, rng.Intn(int(days)))
}

func writeInbound(path string, start time.Time, n int, rng *rand.Rand) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "PIPO & BIBO Inward"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := []any{"Received Date", "STN No./Invoice No.", "Invoice Value", "Invoice Qty", "No of Boxes", "Party Name", "Type", "Article No"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		qty := 10 + rng.Intn(490)
		row := []any{
			dayIn(start, rng).Format("02-01-2006"),
			fmt.Sprintf("STN-%05d", i+1),
			float64(qty) * (150 + rng.Float64()*850),
			qty,
			1 + qty/25,
			parties[rng.Intn(len(parties))],
			"PIPO",
			fmt.Sprintf("ART-%03d", rng.Intn(300)),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeOutbound(path string, start time.Time, n int, rng *rand.Rand) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Outward MIS"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	// Row 1 carries sheet totals and is skipped by the parser.
	if err := f.SetCellValue(sheet, "A1", "Totals"); err != nil {
		return err
	}
	header := []any{"Invoice No.", "Invoice Date", "Dispatched Date", "Party Name", "Invoice Qty", "No. Of Box", "INVOICE GROSS TOTAL VALUE"}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		invoiced := dayIn(start, rng)
		qty := 5 + rng.Intn(200)
		row := []any{
			fmt.Sprintf("INV-%05d", i+1),
			invoiced.Format("02-01-2006"),
			invoiced.AddDate(0, 0, rng.Intn(3)).Format("02-01-2006"),
			parties[rng.Intn(len(parties))],
			qty,
			1 + qty/20,
			float64(qty) * (2000 + rng.Float64()*18000),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

package ingest

import (
	"fmt"
	"testing"
)

func BenchmarkParseInbound(b *testing.B) {
	rows := [][]any{inboundHeader}
	for i := 0; i < 2000; i++ {
		rows = append(rows, []any{"05-03-2025", fmt.Sprintf("STN-%d", i), 1250.5, 40, 3, "Acme", "ART-1"})
	}
	data := workbook(b, inboundLayout.Sheet, rows)
	p := newTestParser()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.ParseInbound(data); err != nil {
			b.Fatal(err)
		}
	}
}

package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

var csvHeader = []string{
	"PROVNUM",
	"STATE",
	"CY_Qtr",
	"nurse_to_patient_ratio",
	"contract_vs_employed_ratio",
	"total_nurse_hours",
}

// WriteCSV writes the metrics summary in CSV form.
func WriteCSV(w io.Writer, metrics []StaffingMetric) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, m := range metrics {
		record := []string{
			m.Provnum,
			m.State,
			m.Quarter,
			formatFloat(m.NurseToPatientRatio),
			formatFloat(m.ContractVsEmployed),
			formatFloat(m.TotalNurseHours),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the metrics summary to the given file path.
func ExportCSV(path string, metrics []StaffingMetric) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := WriteCSV(f, metrics); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

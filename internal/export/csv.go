package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// TransactionRow is one line of the transaction history export.
type TransactionRow struct {
	Date        time.Time
	Description string
	Type        string
	Status      string
	Amount      float64
}

// WriteTransactionsCSV emits the transaction history as CSV.
func WriteTransactionsCSV(w io.Writer, rows []TransactionRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Data", "Descrição", "Tipo", "Status", "Valor"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Date.Format("02/01/2006"),
			row.Description,
			row.Type,
			row.Status,
			strconv.FormatFloat(row.Amount, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteCSV streams the movement report as CSV.
func WriteCSV(w io.Writer, rep MovementReport) error {
	cw := csv.NewWriter(w)
	header := []string{
		"lot_id", "item_id", "color", "date_received",
		"beginning", "purchased", "transferred", "sold", "ending",
		"live_available", "live_reserved", "live_sold", "desync",
		"cost", "srp",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rep.Rows {
		received := ""
		if !row.Lot.DateReceived.IsZero() {
			received = row.Lot.DateReceived.Format("2006-01-02")
		}
		record := []string{
			strconv.FormatInt(row.Lot.ID, 10),
			strconv.FormatInt(row.Lot.ItemID, 10),
			row.Lot.Color,
			received,
			strconv.Itoa(row.Lot.BeginningQty),
			strconv.Itoa(row.Lot.PurchasedQty),
			strconv.Itoa(row.Lot.TransferredQty),
			strconv.Itoa(row.Lot.SoldQty),
			strconv.Itoa(row.Lot.EndingQty),
			strconv.Itoa(row.Live.Available),
			strconv.Itoa(row.Live.Reserved),
			strconv.Itoa(row.Live.Sold),
			strconv.FormatBool(row.Desync),
			strconv.FormatFloat(row.Lot.Cost, 'f', 2, 64),
			strconv.FormatFloat(row.Lot.SRP, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	totals := []string{
		"totals", "", "", "",
		strconv.Itoa(rep.Totals.Beginning),
		strconv.Itoa(rep.Totals.Purchased),
		strconv.Itoa(rep.Totals.Transferred),
		strconv.Itoa(rep.Totals.Sold),
		strconv.Itoa(rep.Totals.Ending),
		"", "", "", "",
		strconv.FormatFloat(rep.Totals.StockValue, 'f', 2, 64),
		"",
	}
	if err := cw.Write(totals); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

package report

import (
	"html/template"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var movementTemplate = template.Must(template.New("movement").Funcs(template.FuncMap{
	"money": func(v float64) string { return printer.Sprintf("%.2f", v) },
	"num":   func(v int) string { return printer.Sprintf("%d", v) },
}).Parse(`<html>
<head><title>Stock Movement</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: right; }
th { background: #eee; }
td.l { text-align: left; }
tr.desync td { background: #fdd; }
</style>
</head>
<body>
<h1>Stock Movement &mdash; Branch {{.BranchID}}</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</p>
<table>
<tr>
  <th>Lot</th><th>Item</th><th>Color</th><th>Received</th>
  <th>Beginning</th><th>Purchased</th><th>Transferred</th><th>Sold</th><th>Ending</th>
  <th>Cost</th><th>SRP</th>
</tr>
{{range .Rows}}
<tr{{if .Desync}} class="desync"{{end}}>
  <td>{{.Lot.ID}}</td><td>{{.Lot.ItemID}}</td><td class="l">{{.Lot.Color}}</td>
  <td>{{if not .Lot.DateReceived.IsZero}}{{.Lot.DateReceived.Format "2006-01-02"}}{{end}}</td>
  <td>{{num .Lot.BeginningQty}}</td><td>{{num .Lot.PurchasedQty}}</td>
  <td>{{num .Lot.TransferredQty}}</td><td>{{num .Lot.SoldQty}}</td><td>{{num .Lot.EndingQty}}</td>
  <td>{{money .Lot.Cost}}</td><td>{{money .Lot.SRP}}</td>
</tr>
{{end}}
<tr>
  <th colspan="4">Totals</th>
  <th>{{num .Totals.Beginning}}</th><th>{{num .Totals.Purchased}}</th>
  <th>{{num .Totals.Transferred}}</th><th>{{num .Totals.Sold}}</th><th>{{num .Totals.Ending}}</th>
  <th colspan="2">{{money .Totals.StockValue}}</th>
</tr>
</table>
</body>
</html>`))

// WriteHTML renders the movement report as a printable HTML page.
func WriteHTML(w io.Writer, rep MovementReport) error {
	return movementTemplate.Execute(w, rep)
}

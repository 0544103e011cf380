package api

import "html/template"

const pageStyle = `<style>
body { font-family: Arial, sans-serif; margin: 40px; line-height: 1.6; color: #333; }
h1 { color: #0066cc; }
.box { background: #f5f5f5; border-radius: 5px; padding: 15px; margin: 20px 0; }
.ok { border-left: 4px solid #2e8b57; }
.fail { border-left: 4px solid #cc3333; }
a.button { display: inline-block; background: #0066cc; color: #fff; padding: 10px 20px; border-radius: 4px; text-decoration: none; }
table { border-collapse: collapse; }
td { padding: 2px 12px 2px 0; }
</style>`

var pages = template.Must(template.New("status").Parse(`<html><head><title>{{.Title}} Data Pipeline</title>` + pageStyle + `</head>
<body>
<h1>{{.Title}} Data Pipeline</h1>
<div class="box">
<p><strong>Status:</strong> Running ({{.State}})</p>
{{if .NextRun}}<p><strong>Next scheduled run:</strong> {{.NextRun}}</p>{{end}}
</div>
<p>This service pulls daily {{.Title}} prices, the benchmark commodity price and market capitalization from Alpha Vantage and stores one record per trading date.</p>
{{with .Last}}<div class="box {{if .Completed}}ok{{else}}fail{{end}}">
<p><strong>Last run:</strong></p>
<table>
<tr><td>Run</td><td>{{.ID}} ({{.Trigger}})</td></tr>
<tr><td>Finished</td><td>{{.FinishedAt.Format "2006-01-02 15:04:05"}}</td></tr>
<tr><td>Result</td><td>{{.State}}{{if .FailedStage}} at {{.FailedStage}} ({{.Kind}}){{end}}</td></tr>
{{if not .TradingDate.IsZero}}<tr><td>Trading date</td><td>{{.TradingDate}}</td></tr>{{end}}
{{if .ReportPath}}<tr><td>Report</td><td>{{.ReportPath}}</td></tr>{{end}}
{{range .Warnings}}<tr><td>Warning</td><td>{{.Stage}}: {{.Kind}}</td></tr>{{end}}
</table>
</div>{{end}}
<p>To run the pipeline now, click the button below:</p>
<a class="button" href="/run">Run pipeline</a>
</body></html>`))

func init() {
	template.Must(pages.New("run_ok").Parse(`<html><head><title>Pipeline finished</title>` + pageStyle + `</head>
<body>
<h1>Pipeline ran successfully</h1>
<div class="box ok">
<p>Trading date: {{.TradingDate}}</p>
{{if .ReportPath}}<p>Report saved to: {{.ReportPath}}</p>{{else}}<p>No report was generated; see the logs for details.</p>{{end}}
</div>
<p>The data was fetched, reconciled and stored.</p>
<a class="button" href="/">Back</a>
</body></html>`))

	template.Must(pages.New("run_failed").Parse(`<html><head><title>Pipeline failed</title>` + pageStyle + `</head>
<body>
<h1>Pipeline run failed</h1>
<div class="box fail">
<p>Check the logs for details.</p>
</div>
<a class="button" href="/">Back</a>
</body></html>`))

	template.Must(pages.New("not_found").Parse(`<html><head><title>Not found</title>` + pageStyle + `</head>
<body>
<h1>404 - Page not found</h1>
<a class="button" href="/">Back</a>
</body></html>`))
}

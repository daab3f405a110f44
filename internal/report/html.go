package report

import (
	"html/template"
	"io"

	"github.com/apk-inspect/apk-inspect-go/internal/apk"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>APK 分析报告 - {{.FileName}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #4a90d9; padding-bottom: 0.3em; }
h2 { color: #4a90d9; margin-top: 1.5em; }
table { border-collapse: collapse; margin: 0.5em 0; }
td, th { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #f0f4f8; }
code { background: #f5f5f5; padding: 1px 4px; }
.warn { color: #b00; }
</style>
</head>
<body>
<h1>{{.FileName}}</h1>
<h2>文件指纹</h2>
<table>
<tr><th>Size</th><td>{{.Size}}</td></tr>
<tr><th>MD5</th><td><code>{{.MD5}}</code></td></tr>
<tr><th>SHA-1</th><td><code>{{.SHA1}}</code></td></tr>
<tr><th>SHA-256</th><td><code>{{.SHA256}}</code></td></tr>
<tr><th>SHA-512</th><td><code>{{.SHA512}}</code></td></tr>
</table>

<h2>清单</h2>
{{if .Manifest}}
<table>
<tr><th>Package</th><td>{{.Manifest.PackageName}}</td></tr>
{{if .Manifest.VersionName}}<tr><th>Version</th><td>{{.Manifest.VersionName}}</td></tr>{{end}}
{{if .Manifest.Label}}<tr><th>Label</th><td>{{.Manifest.Label}}</td></tr>{{end}}
</table>
{{if .Manifest.Permissions}}
<h3>权限 ({{len .Manifest.Permissions}})</h3>
<ul>{{range .Manifest.Permissions}}<li><code>{{.}}</code></li>{{end}}</ul>
{{end}}
{{if .Manifest.Activities}}
<h3>Activities ({{len .Manifest.Activities}})</h3>
<ul>{{range .Manifest.Activities}}<li><code>{{.Name}}</code></li>{{end}}</ul>
{{end}}
{{if .Manifest.Services}}
<h3>Services ({{len .Manifest.Services}})</h3>
<ul>{{range .Manifest.Services}}<li><code>{{.Name}}</code></li>{{end}}</ul>
{{end}}
{{if .Manifest.Receivers}}
<h3>Receivers ({{len .Manifest.Receivers}})</h3>
<ul>{{range .Manifest.Receivers}}<li><code>{{.Name}}</code></li>{{end}}</ul>
{{end}}
{{else}}
<p class="warn">清单解析失败: {{.ManifestError}}</p>
{{end}}

<h2>DEX</h2>
{{if .Dex}}
<table>
<tr><th>Version</th><td>{{.Dex.Version}}</td></tr>
<tr><th>Integrity</th><td>{{if .Dex.IntegrityVerified}}verified{{else}}<span class="warn">mismatch</span>{{end}}</td></tr>
<tr><th>Strings</th><td>{{.Dex.StringIDs.Count}}</td></tr>
<tr><th>Classes</th><td>{{.Dex.ClassDefs.Count}}</td></tr>
<tr><th>Methods</th><td>{{.Dex.MethodIDs.Count}}</td></tr>
</table>
{{else}}
<p class="warn">DEX 解析失败: {{.DexError}}</p>
{{end}}

<h2>证书 ({{len .Certificates}})</h2>
{{range .Certificates}}
<table>
<tr><th>Source</th><td>{{.Source}}</td></tr>
<tr><th>Serial</th><td><code>{{.SerialNumber}}</code></td></tr>
<tr><th>Subject</th><td>{{.SubjectString}}</td></tr>
<tr><th>Issuer</th><td>{{.IssuerString}}</td></tr>
<tr><th>Valid from</th><td>{{.NotBefore}}</td></tr>
<tr><th>Valid until</th><td>{{.NotAfter}}</td></tr>
<tr><th>SHA-256</th><td><code>{{.FingerprintSHA256}}</code></td></tr>
</table>
{{end}}

{{if .URLs}}
<h2>URL ({{len .URLs}})</h2>
<ul>{{range .URLs}}<li><code>{{.}}</code></li>{{end}}</ul>
{{end}}

{{if .ShellCommands}}
<h2>Shell 命令 ({{len .ShellCommands}})</h2>
<ul>{{range .ShellCommands}}<li><code>{{.}}</code></li>{{end}}</ul>
{{end}}
</body>
</html>
`))

// WriteHTML 渲染 HTML 报告
func WriteHTML(w io.Writer, pkg *apk.Package) error {
	return htmlTemplate.Execute(w, pkg)
}

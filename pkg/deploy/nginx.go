package deploy

import (
	"bytes"
	"fmt"
	"text/template"
)

// Proxy timeouts are deliberately long: model generation can keep a single
// request open for minutes.
const proxyTimeoutSeconds = 300

// The shared proxy location block. Buffering must stay off so streamed
// tokens reach the browser as they are produced, and the WebSocket upgrade
// headers are required by the web UI.
const locationTemplate = `    location / {
        proxy_pass http://{{ .UIService }}:{{ .UIPort }};
        proxy_http_version 1.1;

        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;

        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";

        proxy_buffering off;
        proxy_request_buffering off;
        proxy_cache off;

        proxy_connect_timeout {{ .Timeout }}s;
        proxy_send_timeout {{ .Timeout }}s;
        proxy_read_timeout {{ .Timeout }}s;
    }`

const simpleTemplate = `# Generated by chatstack. Regenerated wholesale on every run; do not edit.
server {
    listen {{ .HTTPPort }};
    server_name {{ .Domain }};

    client_max_body_size 100M;

{{ template "location" . }}
}
`

const advancedTemplate = `# Generated by chatstack. Regenerated wholesale on every run; do not edit.
server {
    listen {{ .HTTPPort }};
    server_name {{ .Domain }};

    return 301 https://$host$request_uri;
}

server {
    listen {{ .HTTPSPort }} ssl;
    http2 on;
    server_name {{ .Domain }};

    ssl_certificate /etc/nginx/certs/{{ .CertFile }};
    ssl_certificate_key /etc/nginx/certs/{{ .KeyFile }};

    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_ciphers ECDHE-ECDSA-AES128-GCM-SHA256:ECDHE-RSA-AES128-GCM-SHA256:ECDHE-ECDSA-AES256-GCM-SHA384:ECDHE-RSA-AES256-GCM-SHA384;
    ssl_prefer_server_ciphers off;
    ssl_session_cache shared:SSL:10m;
    ssl_session_timeout 10m;

    add_header Strict-Transport-Security "max-age=31536000; includeSubDomains" always;
    add_header X-Frame-Options SAMEORIGIN always;
    add_header X-Content-Type-Options nosniff always;

    client_max_body_size 100M;

{{ template "location" . }}
}
`

type proxyConfigData struct {
	Domain    string
	UIService string
	UIPort    int
	HTTPPort  int
	HTTPSPort int
	CertFile  string
	KeyFile   string
	Timeout   int
}

var (
	simpleProxyTmpl   = mustProxyTemplate("simple", simpleTemplate)
	advancedProxyTmpl = mustProxyTemplate("advanced", advancedTemplate)
)

func mustProxyTemplate(name, body string) *template.Template {
	t := template.Must(template.New(name).Parse(body))
	template.Must(t.New("location").Parse(locationTemplate))
	return t
}

// GenerateProxyConfig renders the reverse-proxy virtual-host document for
// the given inputs. Simple mode emits one plain HTTP server; advanced mode
// emits a TLS-terminating server plus an unconditional HTTP-to-HTTPS
// redirect server.
func GenerateProxyConfig(in Inputs) ([]byte, error) {
	data := proxyConfigData{
		Domain:    in.Domain,
		UIService: ServiceWebUI,
		UIPort:    WebUIPort,
		HTTPPort:  HTTPPort,
		HTTPSPort: HTTPSPort,
		CertFile:  CertFileName,
		KeyFile:   KeyFileName,
		Timeout:   proxyTimeoutSeconds,
	}

	tmpl := simpleProxyTmpl
	if in.Mode == ModeAdvanced {
		tmpl = advancedProxyTmpl
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, &GenerationError{Artifact: ProxyConfigName, Err: fmt.Errorf("render template: %w", err)}
	}
	return buf.Bytes(), nil
}

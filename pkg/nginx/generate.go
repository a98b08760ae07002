package nginx

import (
	"fmt"
	"strings"
)

// Generate renders a complete two-block virtual host: a plaintext block that
// serves the ACME challenge path and redirects everything else, and a secure
// block that terminates TLS and proxies to the upstream.
func Generate(plan Plan) string {
	var config strings.Builder

	config.WriteString(fmt.Sprintf("# Managed by certmate for %s\n", plan.Domain))

	// HTTP block
	config.WriteString("server {\n")
	config.WriteString("    listen 80;\n")
	config.WriteString("    listen [::]:80;\n")
	config.WriteString(fmt.Sprintf("    server_name %s;\n\n", plan.Domain))

	config.WriteString("    # ACME challenge\n")
	config.WriteString("    location /.well-known/acme-challenge/ {\n")
	config.WriteString(fmt.Sprintf("        root %s;\n", plan.WebRoot))
	config.WriteString("    }\n")

	if plan.RedirectHTTP {
		config.WriteString("\n    location / {\n")
		config.WriteString(fmt.Sprintf("        return 301 https://%s$request_uri;\n", plan.Domain))
		config.WriteString("    }\n")
	}
	config.WriteString("}\n\n")

	// HTTPS block
	config.WriteString("server {\n")
	if plan.EnableHTTP2 {
		config.WriteString("    listen 443 ssl http2;\n")
		config.WriteString("    listen [::]:443 ssl http2;\n")
	} else {
		config.WriteString("    listen 443 ssl;\n")
		config.WriteString("    listen [::]:443 ssl;\n")
	}
	config.WriteString(fmt.Sprintf("    server_name %s;\n\n", plan.Domain))

	config.WriteString(fmt.Sprintf("    ssl_certificate %s;\n", plan.CertPath))
	config.WriteString(fmt.Sprintf("    ssl_certificate_key %s;\n\n", plan.KeyPath))

	config.WriteString("    ssl_protocols TLSv1.2 TLSv1.3;\n")
	config.WriteString("    ssl_ciphers HIGH:!aNULL:!MD5;\n")
	config.WriteString("    ssl_prefer_server_ciphers on;\n")
	config.WriteString("    ssl_session_cache shared:SSL:10m;\n")
	config.WriteString("    ssl_session_timeout 10m;\n")

	if plan.EnableHSTS {
		config.WriteString("\n    add_header Strict-Transport-Security \"max-age=31536000\" always;\n")
	}

	if len(plan.Locations) > 0 {
		for _, loc := range plan.Locations {
			config.WriteString(fmt.Sprintf("\n    location %s {\n", loc.Path))
			for _, directive := range loc.Directives {
				config.WriteString(fmt.Sprintf("        %s;\n", strings.TrimSuffix(directive, ";")))
			}
			config.WriteString("    }\n")
		}
	} else {
		config.WriteString("\n")
		config.WriteString(proxyLocation("/", plan.Upstream))
	}

	config.WriteString("}\n")

	return config.String()
}

// proxyLocation renders a standard reverse-proxy location block
func proxyLocation(path, upstream string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("    location %s {\n", path))
	b.WriteString(fmt.Sprintf("        proxy_pass http://%s;\n", upstream))
	b.WriteString("        proxy_http_version 1.1;\n")
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("        proxy_set_header X-Real-IP $remote_addr;\n")
	b.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
	b.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n\n")

	b.WriteString("        # WebSocket support\n")
	b.WriteString("        proxy_set_header Upgrade $http_upgrade;\n")
	b.WriteString("        proxy_set_header Connection \"upgrade\";\n\n")

	b.WriteString("        proxy_connect_timeout 60s;\n")
	b.WriteString("        proxy_send_timeout 60s;\n")
	b.WriteString("        proxy_read_timeout 60s;\n")
	b.WriteString("    }\n")

	return b.String()
}

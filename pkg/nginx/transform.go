package nginx

import (
	"fmt"
	"strings"
)

// State classifies an existing config file.
type State int

const (
	StateAbsent State = iota
	StatePlain        // plaintext listener, no certificate directive
	StateTLS          // certificate directive or secure listener present
)

// Classify inspects config text and reports whether it already terminates TLS
func Classify(content []byte) State {
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "ssl_certificate") {
			return StateTLS
		}
		if strings.HasPrefix(line, "listen") && isTLSListen(line) {
			return StateTLS
		}
	}
	return StatePlain
}

// isTLSListen reports whether a listen directive binds a secure listener:
// the port field is exactly 443, or the args carry the ssl token. Ports
// that merely contain 443, like 8443, are plaintext.
func isTLSListen(directive string) bool {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(directive), ";"))
	if len(fields) < 2 {
		return false
	}
	for _, arg := range fields[1:] {
		if arg == "ssl" {
			return true
		}
	}
	return listenPort(fields[1]) == "443"
}

// listenPort extracts the port from a listen address field: "443", "*:443",
// "[::]:443", "127.0.0.1:8080". An address without a port returns as is.
func listenPort(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

// Transform rewrites a plaintext config in place: every server block with a
// plaintext listener gets a companion secure block that reuses its locations
// and directives, and the plaintext block gains the ACME challenge location
// if it lacks one. Blocks that already listen on TLS pass through untouched.
func Transform(src string, plan Plan) (string, error) {
	blocks := ScanBlocks(src)

	var out strings.Builder
	cursor := 0
	transformed := false

	for _, b := range blocks {
		out.WriteString(src[cursor:b.Start])
		cursor = b.End

		if !isServerBlock(b) || !hasPlainListener(b.Body) {
			out.WriteString(src[b.Start:b.End])
			continue
		}

		out.WriteString(withChallengeLocation(src[b.Start:b.End], b, plan.WebRoot))
		out.WriteString("\n\n")
		out.WriteString(secureCompanion(b, plan))
		transformed = true
	}
	out.WriteString(src[cursor:])

	if !transformed {
		return "", fmt.Errorf("no plaintext server block found to transform")
	}
	return out.String(), nil
}

// hasPlainListener reports whether a server body listens without TLS
func hasPlainListener(body string) bool {
	for _, d := range bareDirectives(body) {
		if strings.HasPrefix(d, "listen") && !isTLSListen(d) {
			return true
		}
	}
	return false
}

// withChallengeLocation appends the ACME challenge location to a server
// block's text unless one is already present.
func withChallengeLocation(blockText string, b Block, webRoot string) string {
	for _, lb := range ScanBlocks(b.Body) {
		if p, ok := isLocationBlock(lb); ok && isChallengePath(p) {
			return blockText
		}
	}

	closing := strings.LastIndexByte(blockText, '}')
	if closing < 0 {
		return blockText
	}

	insert := fmt.Sprintf("\n    location /.well-known/acme-challenge/ {\n        root %s;\n    }\n", webRoot)
	return blockText[:closing] + insert + blockText[closing:]
}

// secureCompanion synthesizes the TLS server block for one plaintext block,
// carrying over its directives and locations except redirect-only and
// challenge-serving ones.
func secureCompanion(b Block, plan Plan) string {
	locations := ScanBlocks(b.Body)

	var sb strings.Builder
	sb.WriteString("server {\n")
	if plan.EnableHTTP2 {
		sb.WriteString("    listen 443 ssl http2;\n")
		sb.WriteString("    listen [::]:443 ssl http2;\n")
	} else {
		sb.WriteString("    listen 443 ssl;\n")
		sb.WriteString("    listen [::]:443 ssl;\n")
	}

	serverName := plan.Domain
	if v := directiveValue(b.Body, "server_name"); v != "" {
		serverName = v
	}
	sb.WriteString(fmt.Sprintf("    server_name %s;\n\n", serverName))

	sb.WriteString(fmt.Sprintf("    ssl_certificate %s;\n", plan.CertPath))
	sb.WriteString(fmt.Sprintf("    ssl_certificate_key %s;\n\n", plan.KeyPath))

	sb.WriteString("    ssl_protocols TLSv1.2 TLSv1.3;\n")
	sb.WriteString("    ssl_ciphers HIGH:!aNULL:!MD5;\n")
	sb.WriteString("    ssl_prefer_server_ciphers on;\n")

	if plan.EnableHSTS {
		sb.WriteString("    add_header Strict-Transport-Security \"max-age=31536000\" always;\n")
	}

	carried := false
	for _, d := range bareDirectives(b.Body) {
		name := strings.Fields(d)[0]
		if name == "listen" || name == "server_name" || strings.HasPrefix(name, "ssl_") {
			continue
		}
		if !carried {
			sb.WriteString("\n")
			carried = true
		}
		sb.WriteString("    " + d + ";\n")
	}

	for _, lb := range locations {
		p, ok := isLocationBlock(lb)
		if !ok {
			continue
		}
		if isChallengePath(p) || isRedirectOnly(lb.Body) {
			continue
		}
		sb.WriteString("\n" + strings.TrimRight(b.Body[lb.Start:lb.End], " \t") + "\n")
	}

	sb.WriteString("}\n")
	return sb.String()
}

// bareDirectives returns the block's own directives, with nested blocks and
// comments stripped out.
func bareDirectives(body string) []string {
	var rest strings.Builder
	cursor := 0
	for _, nb := range ScanBlocks(body) {
		rest.WriteString(body[cursor:nb.Start])
		cursor = nb.End
	}
	rest.WriteString(body[cursor:])

	var directives []string
	for _, seg := range strings.Split(rest.String(), ";") {
		var clean strings.Builder
		for _, line := range strings.Split(seg, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if clean.Len() > 0 {
				clean.WriteString(" ")
			}
			clean.WriteString(trimmed)
		}
		if d := clean.String(); d != "" {
			directives = append(directives, d)
		}
	}
	return directives
}

// directiveValue returns the argument text of the first matching directive
func directiveValue(body, name string) string {
	for _, d := range bareDirectives(body) {
		fields := strings.Fields(d)
		if len(fields) > 1 && fields[0] == name {
			return strings.Join(fields[1:], " ")
		}
	}
	return ""
}

// isRedirectOnly reports whether a location body does nothing but redirect
// to HTTPS. Such locations are superseded by the secure block.
func isRedirectOnly(body string) bool {
	directives := bareDirectives(body)
	if len(directives) != 1 {
		return false
	}
	d := directives[0]
	if strings.HasPrefix(d, "return ") && strings.Contains(d, "https") {
		return true
	}
	return strings.HasPrefix(d, "rewrite ") && strings.Contains(d, "https")
}

func isChallengePath(p string) bool {
	return strings.Contains(p, ".well-known/acme-challenge")
}

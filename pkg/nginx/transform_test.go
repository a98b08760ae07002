package nginx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPlan = Plan{
	Domain:       "example.com",
	Upstream:     "localhost:3000",
	WebRoot:      "/var/www/html",
	CertPath:     "/etc/certmate/certs/example.com/fullchain.pem",
	KeyPath:      "/etc/certmate/certs/example.com/cert.key",
	RedirectHTTP: true,
	EnableHTTP2:  true,
}

func TestGenerateTwoBlocks(t *testing.T) {
	out := Generate(testPlan)

	blocks := ScanBlocks(out)
	require.Len(t, blocks, 2)

	plain := blocks[0].Body
	secure := blocks[1].Body

	assert.Contains(t, plain, "listen 80;")
	assert.Contains(t, plain, "server_name example.com;")
	assert.Contains(t, plain, "location /.well-known/acme-challenge/")
	assert.Contains(t, plain, "return 301 https://example.com$request_uri;")

	assert.Contains(t, secure, "listen 443 ssl http2;")
	assert.Contains(t, secure, "server_name example.com;")
	assert.Contains(t, secure, "ssl_certificate /etc/certmate/certs/example.com/fullchain.pem;")
	assert.Contains(t, secure, "ssl_certificate_key /etc/certmate/certs/example.com/cert.key;")
	assert.Contains(t, secure, "proxy_pass http://localhost:3000;")
}

func TestGenerateNoRedirect(t *testing.T) {
	plan := testPlan
	plan.RedirectHTTP = false

	out := Generate(plan)
	assert.NotContains(t, out, "return 301")
}

func TestTransformCarriesLocations(t *testing.T) {
	src := `server {
    listen 80;
    server_name example.com;
    client_max_body_size 50M;

    location / {
        proxy_pass http://localhost:3000;
        proxy_set_header Host $host;
    }

    location /api/ {
        proxy_pass http://localhost:4000;
        proxy_read_timeout 120s;
    }

    location /static/ {
        root /srv/static;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	blocks := ScanBlocks(out)
	require.Len(t, blocks, 2)

	secure := blocks[1]
	secureLocations := ScanBlocks(secure.Body)
	require.Len(t, secureLocations, 3, "every original location should carry over")

	assert.Contains(t, secure.Body, "proxy_pass http://localhost:3000;")
	assert.Contains(t, secure.Body, "proxy_pass http://localhost:4000;")
	assert.Contains(t, secure.Body, "proxy_read_timeout 120s;")
	assert.Contains(t, secure.Body, "root /srv/static;")
	assert.Contains(t, secure.Body, "client_max_body_size 50M;")
	assert.NotContains(t, secure.Body, "acme-challenge",
		"the secure block must not serve challenge proofs")

	// The plaintext block gains exactly one challenge location.
	plain := blocks[0].Body
	assert.Equal(t, 1, strings.Count(plain, "location /.well-known/acme-challenge/"))
}

func TestTransformDropsRedirectOnlyLocations(t *testing.T) {
	src := `server {
    listen 80;
    server_name example.com;

    location / {
        return 301 https://example.com$request_uri;
    }

    location /app {
        proxy_pass http://localhost:3000;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	blocks := ScanBlocks(out)
	require.Len(t, blocks, 2)

	secureLocations := ScanBlocks(blocks[1].Body)
	require.Len(t, secureLocations, 1)
	assert.Contains(t, blocks[1].Body, "proxy_pass http://localhost:3000;")
	assert.NotContains(t, blocks[1].Body, "return 301")
}

func TestTransformNoDuplicateChallengeLocation(t *testing.T) {
	src := `server {
    listen 80;
    server_name example.com;

    location /.well-known/acme-challenge/ {
        root /var/www/html;
    }

    location / {
        proxy_pass http://localhost:3000;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "location /.well-known/acme-challenge/"))
}

func TestTransformLeavesTLSBlocksAlone(t *testing.T) {
	src := `server {
    listen 443 ssl;
    server_name other.example.com;
    ssl_certificate /etc/ssl/other.pem;
}

server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	// The original TLS block survives verbatim; only the plaintext block
	// gets a companion.
	assert.Contains(t, out, "ssl_certificate /etc/ssl/other.pem;")
	blocks := ScanBlocks(out)
	assert.Len(t, blocks, 3)
}

func TestTransformKeepsServerName(t *testing.T) {
	src := `server {
    listen 80;
    server_name www.example.com example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	blocks := ScanBlocks(out)
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[1].Body, "server_name www.example.com example.com;")
}

func TestTransformHighPortListenerIsPlain(t *testing.T) {
	src := `server {
    listen 8443;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }
}`

	out, err := Transform(src, testPlan)
	require.NoError(t, err)

	blocks := ScanBlocks(out)
	require.Len(t, blocks, 2, "8443 is not a secure listener; the block gets a companion")
	assert.Contains(t, blocks[1].Body, "listen 443 ssl http2;")
	assert.Contains(t, blocks[0].Body, "location /.well-known/acme-challenge/")
}

func TestTransformNoPlainBlock(t *testing.T) {
	src := `server {
    listen 443 ssl;
    ssl_certificate /etc/ssl/c.pem;
}`

	_, err := Transform(src, testPlan)
	assert.Error(t, err)
}

package nginx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBlocksNestedBraces(t *testing.T) {
	src := `server {
    listen 80;
    server_name example.com;

    location / {
        proxy_pass http://localhost:3000;
    }

    location /api {
        if ($request_method = POST) {
            return 405;
        }
        proxy_pass http://localhost:4000;
    }
}`

	blocks := ScanBlocks(src)
	require.Len(t, blocks, 1)
	assert.Equal(t, "server", blocks[0].Header)

	inner := ScanBlocks(blocks[0].Body)
	require.Len(t, inner, 2)
	assert.Equal(t, "location /", inner[0].Header)
	assert.Equal(t, "location /api", inner[1].Header)
	// The nested if-block stays inside its location body.
	assert.Contains(t, inner[1].Body, "return 405")
}

func TestScanBlocksQuotedBraces(t *testing.T) {
	src := `server {
    listen 80;
    location /health {
        return 200 "{\"status\": \"ok\"}";
    }
}`

	blocks := ScanBlocks(src)
	require.Len(t, blocks, 1)

	inner := ScanBlocks(blocks[0].Body)
	require.Len(t, inner, 1)
	assert.Contains(t, inner[0].Body, `{\"status\"`)
}

func TestScanBlocksCommentsIgnored(t *testing.T) {
	src := `# managed by hand, braces here { } should not confuse the scanner
server {
    listen 80; # inline comment with a brace }
}
server {
    listen 8080;
}`

	blocks := ScanBlocks(src)
	require.Len(t, blocks, 2)
	assert.Equal(t, "server", blocks[0].Header)
	assert.Equal(t, "server", blocks[1].Header)
}

func TestScanBlocksMultipleTopLevel(t *testing.T) {
	src := `upstream app {
    server 127.0.0.1:3000;
}

server {
    listen 80;
}`

	blocks := ScanBlocks(src)
	require.Len(t, blocks, 2)
	assert.Equal(t, "upstream app", blocks[0].Header)
	assert.True(t, isServerBlock(blocks[1]))
	assert.False(t, isServerBlock(blocks[0]))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    State
	}{
		{
			name:    "plain listener",
			content: "server {\n    listen 80;\n}",
			want:    StatePlain,
		},
		{
			name:    "certificate directive",
			content: "server {\n    listen 80;\n    ssl_certificate /etc/ssl/c.pem;\n}",
			want:    StateTLS,
		},
		{
			name:    "secure listener",
			content: "server {\n    listen 443 ssl;\n}",
			want:    StateTLS,
		},
		{
			name:    "ipv6 secure listener",
			content: "server {\n    listen [::]:443;\n}",
			want:    StateTLS,
		},
		{
			name:    "high port containing 443",
			content: "server {\n    listen 8443;\n    server_name example.com;\n}",
			want:    StatePlain,
		},
		{
			name:    "bound high port",
			content: "server {\n    listen 127.0.0.1:8443;\n}",
			want:    StatePlain,
		},
		{
			name:    "ssl mention only in comment",
			content: "# ssl_certificate goes here later\nserver {\n    listen 80;\n}",
			want:    StatePlain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.content)))
		})
	}
}

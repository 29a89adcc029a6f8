// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package textconv

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestTextDecodesGB18030(t *testing.T) {
	gbk, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte("财政事务 1234.5"))
	require.NoError(t, err)

	got, err := Text{}.Convert(context.Background(), writeFile(t, "a.txt", gbk))
	require.NoError(t, err)
	assert.Equal(t, "财政事务 1234.5", got)

	got, err = Text{}.Convert(context.Background(), writeFile(t, "b.txt", []byte("\xef\xbb\xbf税收事务")))
	require.NoError(t, err)
	assert.Equal(t, "税收事务", got)
}

func TestHTMLText(t *testing.T) {
	doc := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>
<body><h1>2021年决算</h1><p>一般公共预算  支出</p>
<table><tr><th>科目</th><th>决算数</th></tr><tr><td>财政事务</td><td>1,234</td></tr></table>
</body></html>`
	got, err := htmlText(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "2021年决算\n一般公共预算 支出\n科目\t决算数\n财政事务\t1,234", got)
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	assert.True(t, r.Supported("a.HTML"))
	assert.True(t, r.Supported("notes.txt"))
	assert.False(t, r.Supported("report.pdf"))

	_, err := r.Convert(context.Background(), "report.pdf")
	assert.Error(t, err)

	path := writeFile(t, "blank.txt", []byte("  \n"))
	_, err = r.Convert(context.Background(), path)
	assert.ErrorContains(t, err, "contains no text")
}

type fakeRuntime struct {
	images map[string]bool
	out    string
	err    error
}

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) Available(context.Context) bool { return true }

func (f *fakeRuntime) ImageExists(_ context.Context, image string) error {
	if f.images[image] {
		return nil
	}
	return errors.New("no such image")
}

func (f *fakeRuntime) Run(_ context.Context, _ string, stdin io.Reader, stdout io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, _ = io.Copy(io.Discard, stdin)
	_, err := io.WriteString(stdout, f.out)
	return err
}

func TestMarkitdown(t *testing.T) {
	ctx := context.Background()

	_, err := NewMarkitdown(ctx, &fakeRuntime{}, "")
	assert.Error(t, err)

	rt := &fakeRuntime{images: map[string]bool{ImageMarkitdown: true}, out: "# 决算报告\n财政事务 120"}
	m, err := NewMarkitdown(ctx, rt, "")
	require.NoError(t, err)

	r := NewRouter()
	r.Handle(m, MarkitdownExts...)
	got, err := r.Convert(ctx, writeFile(t, "report.PDF", []byte("%PDF-1.7")))
	require.NoError(t, err)
	assert.Equal(t, "# 决算报告\n财政事务 120", got)

	rt.out = ""
	_, err = m.Convert(ctx, writeFile(t, "empty.pdf", []byte("%PDF")))
	assert.ErrorContains(t, err, "empty output")
}

package transfer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantRec Record
	}{
		{
			name:    "phone and tags",
			line:    "+621;a,b",
			wantOK:  true,
			wantRec: Record{Phone: "+621", Tags: []string{"a", "b"}},
		},
		{
			name:    "tags are trimmed and empties dropped",
			line:    "  0812 ; spam , ,scam,  ",
			wantOK:  true,
			wantRec: Record{Phone: "0812", Tags: []string{"spam", "scam"}},
		},
		{
			name:    "phone without tags",
			line:    "+621",
			wantOK:  true,
			wantRec: Record{Phone: "+621", Tags: []string{}},
		},
		{
			name:    "extra fields ignored",
			line:    "+621;a;b,c",
			wantOK:  true,
			wantRec: Record{Phone: "+621", Tags: []string{"a"}},
		},
		{name: "empty phone", line: ";a,b"},
		{name: "blank", line: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := ParseLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRec, rec)
			}
		})
	}
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	input := "+621;a,b\r\n\n;orphan\n+622;c\n+623\n"

	recs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "+621", recs[0].Phone)
	assert.Equal(t, []string{"a", "b"}, recs[0].Tags)
	assert.Equal(t, 1, recs[0].Line)
	assert.Equal(t, "+622", recs[1].Phone)
	assert.Equal(t, 4, recs[1].Line)
	assert.Empty(t, recs[2].Tags)
}

func TestParse_LineTooLong(t *testing.T) {
	input := "+621;" + strings.Repeat("a", MaxLineBytes+1) + "\n"

	_, err := Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(domain.PhoneGroup{Phone: "+621", Tags: []string{"a", "b"}}))
	require.NoError(t, w.Write(domain.PhoneGroup{Phone: "+622"}))
	require.NoError(t, w.Write(domain.PhoneGroup{Phone: "+623", Tags: []string{"c"}}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "+621;a,b\n+623;c\n", buf.String())
}

func TestWriteThenParse(t *testing.T) {
	groups := []domain.PhoneGroup{
		{Phone: "+621", Tags: []string{"a", "b"}},
		{Phone: "+622", Tags: []string{"c"}},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, g := range groups {
		require.NoError(t, w.Write(g))
	}
	require.NoError(t, w.Flush())

	recs, err := Parse(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for i, g := range groups {
		assert.Equal(t, g.Phone, recs[i].Phone)
		assert.Equal(t, g.Tags, recs[i].Tags)
	}
}

func TestContainsSeparator(t *testing.T) {
	assert.False(t, ContainsSeparator("courier"))
	assert.False(t, ContainsSeparator("penipuan online"))
	assert.True(t, ContainsSeparator("a,b"))
	assert.True(t, ContainsSeparator("a;b"))
	assert.True(t, ContainsSeparator("a\nb"))
}

package news

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selection(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Find("li").First()
}

func mcSource() Source {
	for _, s := range defaultSources() {
		if s.Name == "MoneyControl" {
			return s
		}
	}
	panic("source missing")
}

func TestExtractHeadline(t *testing.T) {
	sel := selection(t, `<ul><li class="clearfix">
		<h2><a href="/news/reliance-q1.html">Reliance posts record quarter</a></h2>
		<p>Profit up 12% on retail strength.</p>
	</li></ul>`)

	h, ok := extractHeadline(sel, mcSource())
	require.True(t, ok)
	assert.Equal(t, "MoneyControl", h.Source)
	assert.Equal(t, "Reliance posts record quarter", h.Title)
	assert.Equal(t, "https://www.moneycontrol.com/news/reliance-q1.html", h.URL, "relative links resolve against the source")
	assert.Equal(t, "Profit up 12% on retail strength.", h.Summary)
}

func TestExtractHeadlineSkipsChrome(t *testing.T) {
	// No title: ad/navigation item.
	sel := selection(t, `<ul><li class="clearfix"><p>sponsored</p></li></ul>`)
	_, ok := extractHeadline(sel, mcSource())
	assert.False(t, ok)

	// Title without link.
	sel = selection(t, `<ul><li class="clearfix"><h2><a>headline</a></h2></li></ul>`)
	_, ok = extractHeadline(sel, mcSource())
	assert.False(t, ok)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "www.moneycontrol.com", domainOf("https://www.moneycontrol.com"))
	assert.Equal(t, "economictimes.indiatimes.com", domainOf("https://economictimes.indiatimes.com"))
}

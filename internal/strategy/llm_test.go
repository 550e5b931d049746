package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdviceExtractsEmbeddedJSON(t *testing.T) {
	content := "Here is my analysis:\n{\"recommendation\":\"buy\",\"sentiment\":\"positive\",\"confidence\":82.5,\"reason\":\"strong quarterly results\"}\nHope that helps."

	a, err := parseAdvice(content)
	require.NoError(t, err)
	assert.Equal(t, "BUY", a.Recommendation)
	assert.Equal(t, "positive", a.Sentiment)
	assert.InDelta(t, 82.5, a.Confidence, 0.001)
	assert.Equal(t, "strong quarterly results", a.Reason)
}

func TestParseAdviceClampsConfidence(t *testing.T) {
	a, err := parseAdvice(`{"recommendation":"SELL","confidence":140}`)
	require.NoError(t, err)
	assert.InDelta(t, 100, a.Confidence, 0.001)

	a, err = parseAdvice(`{"recommendation":"HOLD","confidence":-5}`)
	require.NoError(t, err)
	assert.InDelta(t, 0, a.Confidence, 0.001)
}

func TestParseAdviceRejectsGarbage(t *testing.T) {
	_, err := parseAdvice("no json here")
	assert.Error(t, err)

	_, err = parseAdvice(`{"recommendation":"MAYBE"}`)
	assert.Error(t, err)

	_, err = parseAdvice(`{"recommendation": not valid}`)
	assert.Error(t, err)
}

package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"eventType":"ACTOR.RUN.SUCCEEDED"}`)
	sig := Sign("k", body)

	assert.NoError(t, Verify("k", body, sig))
	assert.ErrorIs(t, Verify("other", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, Verify("k", append(body, ' '), sig), ErrInvalidSignature)
	assert.ErrorIs(t, Verify("k", body, "not-hex"), ErrInvalidSignature)
	assert.ErrorIs(t, Verify("k", body, ""), ErrInvalidSignature)
}

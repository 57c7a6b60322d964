package account

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eip55Vectors = []string{
	"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
	"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
}

func TestParseChecksumVectors(t *testing.T) {
	for _, want := range eip55Vectors {
		t.Run(want, func(t *testing.T) {
			got, err := Parse(want)
			require.NoError(t, err)
			assert.Equal(t, Account(want), got)

			lower, err := Parse(strings.ToLower(want))
			require.NoError(t, err)
			assert.Equal(t, Account(want), lower)

			upper, err := Parse("0x" + strings.ToUpper(want[2:]))
			require.NoError(t, err)
			assert.Equal(t, Account(want), upper)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "empty", input: "", want: ErrMalformed},
		{name: "no prefix", input: "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: ErrMalformed},
		{name: "short", input: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA", want: ErrMalformed},
		{name: "long", input: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00", want: ErrMalformed},
		{name: "non hex", input: "0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: ErrMalformed},
		{name: "bad checksum", input: "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, IsValid(tt.input))
		})
	}
}

func TestFromPublicKeyDeterministic(t *testing.T) {
	pub := []byte("public key bytes")
	a := FromPublicKey(pub)
	b := FromPublicKey(pub)
	require.Equal(t, a, b)
	require.True(t, IsValid(a.String()))
	require.NotEqual(t, a, FromPublicKey([]byte("other key bytes")))

	round, err := FromBytes(a.Bytes())
	require.NoError(t, err)
	require.Equal(t, a, round)
}

func TestShortAndEqual(t *testing.T) {
	a := MustParse(eip55Vectors[0])
	assert.Equal(t, "0x5aA...BeAed", a.Short())
	assert.True(t, a.Equal(Account(strings.ToLower(string(a)))))
	assert.False(t, a.Equal(MustParse(eip55Vectors[1])))
	assert.True(t, Account("").IsZero())
}

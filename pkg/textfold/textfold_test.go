package textfold

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Razón Social":        "razon social",
		"  NIÑO   Pequeño ":   "nino pequeno",
		"Gestoría Ñandú S.L.": "gestoria nandu s.l.",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), in)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "razon_social", Key("Razón Social"))
	assert.Equal(t, "nif", Key("NIF"))
}
